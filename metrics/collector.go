package metrics

// Recorder receives finished predictions. Implementations must be safe for
// concurrent use; *Store implements it.
type Recorder interface {
	Record(rec PredictionRecord)
}

var _ Recorder = (*Store)(nil)
