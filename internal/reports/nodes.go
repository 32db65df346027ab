package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xraph/waypoint/checkpoint"
)

// Query is the orchestrator's result.
type Query struct {
	Text string `json:"user_query"`
	Step string `json:"step"`
}

// Processed is one report after metric extraction.
type Processed struct {
	File    string  `json:"file"`
	Type    string  `json:"type"`
	Metrics Metrics `json:"metrics"`
}

// Metrics holds the figures extracted from a report. Only the fields
// relevant to the report type are set.
type Metrics struct {
	TotalRevenue           int64  `json:"total_revenue,omitempty"`
	GrowthYoY              string `json:"growth_yoy,omitempty"`
	TopProduct             string `json:"top_product,omitempty"`
	TopProductContribution string `json:"top_product_contribution,omitempty"`
	RecurringRevenue       int64  `json:"recurring_revenue,omitempty"`
	NewCustomers           int    `json:"new_customers,omitempty"`
	ChurnRate              string `json:"churn_rate,omitempty"`
	CampaignROI            string `json:"campaign_roi,omitempty"`
	LeadsGenerated         int    `json:"leads_generated,omitempty"`
	ConversionRate         string `json:"conversion_rate,omitempty"`
	BudgetUtilization      string `json:"budget_utilization,omitempty"`
	CostSavings            int64  `json:"cost_savings,omitempty"`
	ExpensesYoY            string `json:"expenses_yoy,omitempty"`
}

// Summary is the summary agent's result.
type Summary struct {
	Text     string   `json:"summary"`
	Insights []string `json:"insights"`
}

// Report types.
const (
	TypeSales     = "sales"
	TypeRevenue   = "revenue"
	TypeMarketing = "marketing"
	TypeFinancial = "financial"
	TypeGeneral   = "general"
)

func (w *workflow) orchestrate(ctx context.Context, s checkpoint.State) (checkpoint.State, error) {
	if err := w.sleep(ctx, 0.5); err != nil {
		return s, err
	}
	if err := s.SetResult(NodeOrchestrator, Query{Text: s.Input, Step: "orchestrator_complete"}); err != nil {
		return s, err
	}
	w.logger.Info("query received", slog.String("query", s.Input))
	return s, nil
}

func (w *workflow) identify(ctx context.Context, s checkpoint.State) (checkpoint.State, error) {
	if err := w.sleep(ctx, 1); err != nil {
		return s, err
	}
	files := Identify(s.Input)
	if err := s.SetResult(NodeIdentifier, files); err != nil {
		return s, err
	}
	w.logger.Info("reports identified",
		slog.Int("count", len(files)),
		slog.String("reports", strings.Join(files, ", ")),
	)
	return s, nil
}

func (w *workflow) run(ctx context.Context, s checkpoint.State) (checkpoint.State, error) {
	var files []string
	ok, err := s.Result(NodeIdentifier, &files)
	if err != nil {
		return s, fmt.Errorf("read identified reports: %w", err)
	}
	if !ok {
		return s, fmt.Errorf("no reports identified for %q", s.Input)
	}

	processed := make([]Processed, 0, len(files))
	for i, file := range files {
		if err := w.sleep(ctx, 1); err != nil {
			return s, err
		}
		processed = append(processed, Extract(file))
		w.logger.Debug("report processed",
			slog.String("report", file),
			slog.Int("index", i+1),
			slog.Int("total", len(files)),
		)
	}

	if err := s.SetResult(NodeRunner, processed); err != nil {
		return s, err
	}
	w.logger.Info("reports processed", slog.Int("count", len(processed)))
	return s, nil
}

func (w *workflow) summarize(ctx context.Context, s checkpoint.State) (checkpoint.State, error) {
	if err := w.sleep(ctx, 1.5); err != nil {
		return s, err
	}
	var processed []Processed
	if _, err := s.Result(NodeRunner, &processed); err != nil {
		return s, fmt.Errorf("read processed reports: %w", err)
	}

	sum := Summarize(processed)
	if err := s.SetResult(NodeSummary, sum); err != nil {
		return s, err
	}
	s.Output = sum.Text
	return s, nil
}

// Identify maps a free-text query to report files by keyword.
func Identify(query string) []string {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "sales"), strings.Contains(q, "q4"), strings.Contains(q, "revenue"):
		return []string{"sales_q4.pdf", "revenue_q4.xlsx"}
	case strings.Contains(q, "marketing"):
		return []string{"marketing_report.pdf"}
	case strings.Contains(q, "finance"):
		return []string{"financial_summary.xlsx", "budget_q4.pdf"}
	default:
		return []string{"sales_q4.pdf", "revenue_q4.xlsx"}
	}
}

// Extract returns the mock metrics for a report file, keyed on its name.
func Extract(file string) Processed {
	f := strings.ToLower(file)
	switch {
	case strings.Contains(f, "sales"):
		return Processed{File: file, Type: TypeSales, Metrics: Metrics{
			TotalRevenue:           2_500_000,
			GrowthYoY:              "23%",
			TopProduct:             "Product A",
			TopProductContribution: "60%",
		}}
	case strings.Contains(f, "revenue"):
		return Processed{File: file, Type: TypeRevenue, Metrics: Metrics{
			TotalRevenue:     2_500_000,
			RecurringRevenue: 1_800_000,
			NewCustomers:     450,
			ChurnRate:        "3.2%",
		}}
	case strings.Contains(f, "marketing"):
		return Processed{File: file, Type: TypeMarketing, Metrics: Metrics{
			CampaignROI:    "340%",
			LeadsGenerated: 1200,
			ConversionRate: "12%",
		}}
	case strings.Contains(f, "financial"), strings.Contains(f, "budget"):
		return Processed{File: file, Type: TypeFinancial, Metrics: Metrics{
			BudgetUtilization: "87%",
			CostSavings:       150_000,
			ExpensesYoY:       "-5%",
		}}
	default:
		return Processed{File: file, Type: TypeGeneral}
	}
}

// Summarize derives insights and a headline from processed reports.
func Summarize(processed []Processed) Summary {
	if len(processed) == 0 {
		return Summary{
			Text:     "Analysis complete: No reports processed",
			Insights: []string{"No data available for analysis"},
		}
	}

	insights := []string{}
	has := make(map[string]bool)
	for _, p := range processed {
		has[p.Type] = true
		m := p.Metrics
		switch p.Type {
		case TypeSales:
			if m.GrowthYoY != "" {
				insights = append(insights, fmt.Sprintf("Sales grew %s year-over-year", m.GrowthYoY))
			}
			if m.TopProductContribution != "" {
				product := m.TopProduct
				if product == "" {
					product = "Top product"
				}
				insights = append(insights, fmt.Sprintf("%s drove %s of growth", product, m.TopProductContribution))
			}
		case TypeRevenue:
			if m.TotalRevenue != 0 {
				insights = append(insights, "Total revenue reached $"+thousands(m.TotalRevenue))
			}
			if m.NewCustomers != 0 {
				insights = append(insights, fmt.Sprintf("Acquired %d new customers", m.NewCustomers))
			}
		case TypeMarketing:
			if m.CampaignROI != "" {
				insights = append(insights, fmt.Sprintf("Marketing campaigns achieved %s ROI", m.CampaignROI))
			}
			if m.ConversionRate != "" {
				insights = append(insights, fmt.Sprintf("Conversion rate improved to %s", m.ConversionRate))
			}
		case TypeFinancial:
			if m.CostSavings != 0 {
				insights = append(insights, "Achieved $"+thousands(m.CostSavings)+" in cost savings")
			}
			if m.BudgetUtilization != "" {
				insights = append(insights, fmt.Sprintf("Budget utilization at %s", m.BudgetUtilization))
			}
		}
	}

	var text string
	switch {
	case has[TypeSales]:
		text = "Q4 sales analysis complete: +23% YoY growth driven by strong product performance and customer acquisition"
	case has[TypeMarketing]:
		text = "Marketing analysis complete: Campaign ROI exceeded expectations with strong lead generation"
	case has[TypeFinancial]:
		text = "Financial analysis complete: Strong budget management with significant cost savings achieved"
	default:
		text = fmt.Sprintf("Analysis complete: Successfully processed %d report(s) with key insights extracted", len(processed))
	}
	return Summary{Text: text, Insights: insights}
}

// thousands formats n with comma separators.
func thousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
