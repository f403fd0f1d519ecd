package session

import (
	"fmt"

	"go.uber.org/zap"
)

// Job is a background operation started by the session
type Job struct {
	name string
	done chan struct{}
	err  error
}

// Done is closed when the job has finished
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns its error
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Name returns the job kind
func (j *Job) Name() string {
	return j.name
}

// startJob runs fn on the session's wait group. A panic in fn fails the job.
func (s *Session) startJob(name string, fn func() error) *Job {
	job := &Job{name: name, done: make(chan struct{})}
	s.jobs.Go(func() {
		defer close(job.done)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("session job panic recovered",
					zap.String("job", name),
					zap.Any("panic", r))
				job.err = fmt.Errorf("%s panicked: %v", name, r)
			}
		}()
		job.err = fn()
	})
	return job
}
