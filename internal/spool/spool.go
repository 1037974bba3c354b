// Package spool persists queued jobs across restarts. Jobs carry user
// media and questions, so each one is sealed for its user before storage.
package spool

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	"github.com/dmitrijs2005/audiodesc/internal/logging"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/dmitrijs2005/audiodesc/internal/records"
)

type Spool struct {
	repo   records.Repository
	sealer cryptox.Sealer
	log    logging.Logger
}

func New(repo records.Repository, sealer cryptox.Sealer, log logging.Logger) *Spool {
	if log == nil {
		log = logging.Nop()
	}
	return &Spool{repo: repo, sealer: sealer, log: log}
}

// Put stores jobs in one batch.
func (s *Spool) Put(ctx context.Context, jobs []queue.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	recs := make(map[string]*cryptox.Record, len(jobs))
	for _, j := range jobs {
		rec, err := cryptox.SealJSON(s.sealer, j.UserID, j)
		if err != nil {
			return fmt.Errorf("seal job %s: %w", j.ID, err)
		}
		recs[records.SpoolKey(j.EnqueuedAt.UnixNano(), j.ID)] = rec
	}
	if err := s.repo.SaveBatch(ctx, recs); err != nil {
		return fmt.Errorf("spool jobs: %w", err)
	}
	return nil
}

// Take returns every spooled job in enqueue order and deletes it. Records
// that fail authentication stay where they are and are reported in the log.
func (s *Spool) Take(ctx context.Context) ([]queue.Job, error) {
	keys, err := s.repo.Keys(ctx, records.PrefixSpool)
	if err != nil {
		return nil, fmt.Errorf("list spool: %w", err)
	}

	jobs := make([]queue.Job, 0, len(keys))
	taken := make([]string, 0, len(keys))

	for _, key := range keys {
		rec, err := s.repo.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		if rec == nil {
			continue
		}

		var j queue.Job
		if err := cryptox.OpenJSON(s.sealer, rec, &j); err != nil {
			s.log.Error(ctx, "spooled job unreadable, left in place", "key", key, "error", err.Error())
			continue
		}
		if j.UserID != rec.Owner {
			s.log.Error(ctx, "spooled job owner mismatch, left in place", "key", key)
			continue
		}
		jobs = append(jobs, j)
		taken = append(taken, key)
	}

	for _, key := range taken {
		if err := s.repo.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return jobs, nil
}
