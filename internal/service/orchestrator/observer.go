package orchestrator

import "github.com/HienH/sale-smell/internal/models"

// Observer receives the events of one run. OnComplete and OnError are
// mutually exclusive and fire at most once; nothing fires after either, or
// after the run is cancelled.
type Observer interface {
	// OnProgress is called with non-decreasing percentages.
	OnProgress(ev models.ProgressEvent)

	// OnComplete is called with the final result in ev.Result.
	OnComplete(ev models.ResultEvent)

	// OnError is called when the run fails; ev.Err holds the failure.
	OnError(ev models.ResultEvent)
}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) OnProgress(ev models.ProgressEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.OnProgress(ev)
		}
	}
}

func (o Observers) OnComplete(ev models.ResultEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.OnComplete(ev)
		}
	}
}

func (o Observers) OnError(ev models.ResultEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.OnError(ev)
		}
	}
}

// ObserverFuncs adapts plain functions to Observer. Nil functions are
// skipped.
type ObserverFuncs struct {
	Progress func(ev models.ProgressEvent)
	Complete func(ev models.ResultEvent)
	Error    func(ev models.ResultEvent)
}

func (f ObserverFuncs) OnProgress(ev models.ProgressEvent) {
	if f.Progress != nil {
		f.Progress(ev)
	}
}

func (f ObserverFuncs) OnComplete(ev models.ResultEvent) {
	if f.Complete != nil {
		f.Complete(ev)
	}
}

func (f ObserverFuncs) OnError(ev models.ResultEvent) {
	if f.Error != nil {
		f.Error(ev)
	}
}
