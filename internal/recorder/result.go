package recorder

// Outcome is what happened to a Record call. Recording is best-effort: none
// of these outcomes is an error the caller has to handle.
type Outcome int

const (
	// Queued means the event was timestamped and handed to the append worker.
	Queued Outcome = iota
	// Dropped means the event was valid but discarded (queue full or recorder closed).
	Dropped
	// Rejected means the payload did not match its event type.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Queued:
		return "queued"
	case Dropped:
		return "dropped"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result reports a best-effort recording attempt.
type Result struct {
	Outcome     Outcome `json:"-"`
	Status      string  `json:"status"`
	EventID     string  `json:"event_id,omitempty"`
	TimestampMS int64   `json:"timestamp_ms"`
	Reason      string  `json:"reason,omitempty"`
}

// Accepted reports whether the event reached the append queue.
func (r Result) Accepted() bool {
	return r.Outcome == Queued
}

func queued(id string, ts int64) Result {
	return Result{Outcome: Queued, Status: Queued.String(), EventID: id, TimestampMS: ts}
}

func dropped(reason string) Result {
	return Result{Outcome: Dropped, Status: Dropped.String(), Reason: reason}
}

func rejected(reason string) Result {
	return Result{Outcome: Rejected, Status: Rejected.String(), Reason: reason}
}

// Stats counts recorder activity since start.
type Stats struct {
	Queued    int64 `json:"queued"`
	Persisted int64 `json:"persisted"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Rejected  int64 `json:"rejected"`
	QueueLen  int   `json:"queue_len"`
	QueueCap  int   `json:"queue_cap"`
	Sessions  int   `json:"sessions"`
}
