package redis

// Redis key naming conventions for strand data. All keys are prefixed
// with "strand:{queue}:" to avoid collisions between queues and with
// other applications.

// keys builds the key set for one queue name.
type keys struct {
	prefix string
}

func newKeys(queue string) keys {
	return keys{prefix: "strand:" + queue + ":"}
}

// job returns the key for a job's JSON blob: strand:{q}:job:{id}
func (k keys) job(id string) string { return k.prefix + "job:" + id }

// status returns the Set key indexing jobs by status: strand:{q}:status:{s}
func (k keys) status(s string) string { return k.prefix + "status:" + s }

// ready is the Sorted Set of immediately runnable jobs. Score is the
// negated priority; ties resolve lexically on the member, and TypeID
// members are K-sortable, so equal priorities pop oldest-first.
func (k keys) ready() string { return k.prefix + "ready" }

// delayed is the Sorted Set of deferred jobs scored by their RunAt
// time in unix milliseconds.
func (k keys) delayed() string { return k.prefix + "delayed" }

// paused is the flag key marking the queue paused.
func (k keys) paused() string { return k.prefix + "paused" }
