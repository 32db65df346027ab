// Package mongo implements store.Store on MongoDB using mongo-driver/v2.
//
// Each thread is one document in the waypoint_checkpoints collection keyed
// by _id = thread id. Save replaces the document only when its stored
// sequence is the predecessor of the new one.
//
// The caller owns the *mongo.Client lifecycle:
//
//	client, _ := mongo.Connect(options.Client().ApplyURI(uri))
//	s := mongostore.New(client.Database("waypoint"))
//	if err := s.Migrate(ctx); err != nil { ... }
package mongo
