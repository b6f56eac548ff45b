package utils

import (
	"errors"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	TASK_CHAN_SIZE = 100
)

var ErrPoolFull = errors.New("worker pool task queue full")

type WorkerFunction = func(t *tomb.Tomb, task any) error
type WorkerPool struct {
	n     int      // number of workers
	tasks chan any // task connection pool
}

func NewWorkerPool(size uint) *WorkerPool {
	return &WorkerPool{
		n:     max(int(size), 1),
		tasks: make(chan any, TASK_CHAN_SIZE),
	}
}

// Size is the number of workers Setup starts.
func (pool *WorkerPool) Size() int { return pool.n }

// Setup starts the workers under t. They run until t starts dying.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	for id := range pool.n {
		t.Go(func() error {
			return pool.worker(t, id, work)
		})
	}
}

// Workers wait on tasks in the task connection pool and action them.
// Any error returned by work is fatal to the tomb.
func (pool *WorkerPool) worker(t *tomb.Tomb, id int, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Int("id", id).Msg("worker exiting")
				return err
			}
		}
	}
}

// AddTask queues a task. It gives up when the queue is full or t is dying.
func (pool *WorkerPool) AddTask(t *tomb.Tomb, task any) error {
	if !t.Alive() {
		return tomb.ErrDying
	}
	select {
	case pool.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// Drain hands every queued task that no worker picked up to fn.
func (pool *WorkerPool) Drain(fn func(task any)) {
	for {
		select {
		case task := <-pool.tasks:
			fn(task)
		default:
			return
		}
	}
}
