package domain

type ProgressObserver interface {
	OnProgress(status string, current, total int)
}

// ProgressFunc adapts a plain function to ProgressObserver.
type ProgressFunc func(status string, current, total int)

func (f ProgressFunc) OnProgress(status string, current, total int) {
	f(status, current, total)
}
