package extract

// Observer receives one Outcome per extraction. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	ObserveExtraction(o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(o Outcome)

// ObserveExtraction calls f(o).
func (f ObserverFunc) ObserveExtraction(o Outcome) {
	f(o)
}

// Observers fans an Outcome out to several observers.
type Observers []Observer

// ObserveExtraction forwards o to every non-nil observer.
func (obs Observers) ObserveExtraction(o Outcome) {
	for _, observer := range obs {
		if observer != nil {
			observer.ObserveExtraction(o)
		}
	}
}
