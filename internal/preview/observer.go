package preview

import "github.com/lehigh-university-libraries/imagepicker/internal/source"

// Observer is notified of pipeline events. Calls happen with the resolver
// lock held and must not call back into the resolver.
type Observer interface {
	Rejected(kind source.ErrorKind)
	AttemptStarted(kind source.Kind)
	AttemptFinished(status Status, stale bool)
	Submitted(kind source.Kind)
}

type nopObserver struct{}

func (nopObserver) Rejected(source.ErrorKind)    {}
func (nopObserver) AttemptStarted(source.Kind)   {}
func (nopObserver) AttemptFinished(Status, bool) {}
func (nopObserver) Submitted(source.Kind)        {}
