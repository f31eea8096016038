package ike

import (
	"runtime"

	"github.com/sirupsen/logrus"
)

// helperJob is one cryptographic computation farmed out of the event
// loop: DH exponentiation, signature work. The continuation runs back
// on the loop with the retained digest.
type helperJob struct {
	sa   *Sa
	md   *Message
	gen  int
	work func() error
	cont func(*Sa, *Message, error) Result
}

type helperResult struct {
	job *helperJob
	err error
}

// HelperPool runs crypto work on parallel goroutines. Workers never
// touch SA state: they compute, then post the completion back to the
// event loop, which resumes the owning SA.
type HelperPool struct {
	jobs    chan *helperJob
	results chan<- helperResult
}

func NewHelperPool(results chan<- helperResult, workers int) *HelperPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &HelperPool{
		jobs:    make(chan *helperJob, workers*2),
		results: results,
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *HelperPool) worker() {
	for job := range p.jobs {
		err := job.work()
		p.results <- helperResult{job: job, err: err}
	}
}

func (p *HelperPool) Close() {
	close(p.jobs)
}

// submitHelper suspends the current transition: the digest is retained
// with the job and the handler returns Suspend. Within one SA there is
// at most one in-flight helper.
func (e *Engine) submitHelper(sa *Sa, md *Message, work func() error,
	cont func(*Sa, *Message, error) Result) Result {
	if sa.helperBusy {
		e.log.WithFields(sa.Fields()).Debug("helper busy; dropping work, peer retransmit drives retry")
		return Ignore()
	}
	if e.helperSync {
		// single threaded variant used by the tests: the suspension is
		// collapsed, the continuation's result flows straight through
		return cont(sa, md, work())
	}
	sa.helperBusy = true
	e.helperPool.jobs <- &helperJob{
		sa:   sa,
		md:   md,
		gen:  sa.helperGen,
		work: work,
		cont: cont,
	}
	return Suspend()
}

// handleHelperResult resumes a suspended transition on the event loop.
// Results for cancelled SAs (generation bumped by deletion) are dropped
// on return.
func (e *Engine) handleHelperResult(res helperResult) {
	job := res.job
	sa := job.sa
	if job.gen != sa.helperGen {
		e.log.Debug("dropping helper result for cancelled SA")
		return
	}
	sa.helperBusy = false
	result := job.cont(sa, job.md, res.err)
	e.completeTransition(job.md, result)

	// an encrypted packet may have arrived while the exponentiation was
	// in progress; resume it now that keying material exists
	if sa.suspended != nil && sa.Parent().tkm.SkeyidCalculated() {
		suspended := sa.suspended
		sa.suspended = nil
		e.log.WithFields(sa.Fields()).Debug("resuming suspended packet")
		e.processTail(suspended)
	}
}

// cancelHelper orphans any in-flight computation for the SA
func (e *Engine) cancelHelper(sa *Sa, log *logrus.Logger) {
	if sa.helperBusy {
		log.WithFields(sa.Fields()).Debug("cancelling in-flight crypto helper")
	}
	sa.helperGen++
	sa.helperBusy = false
}
