package redis

// All keys are prefixed with "waypoint:" to avoid collisions.
const keyPrefix = "waypoint:"

// threadKey returns the key holding a thread's latest checkpoint:
// waypoint:thread:{id}
func threadKey(id string) string { return keyPrefix + "thread:" + id }

// historyKey returns the list of every revision: waypoint:thread:{id}:history
func historyKey(id string) string { return threadKey(id) + ":history" }

// threadsKey is the Set tracking all thread IDs for enumeration.
const threadsKey = keyPrefix + "threads"
