package batch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/types"
)

// Job is one device and the records to provision on it
type Job struct {
	Credentials types.DeviceCredentials
	Dial        types.Dialer
	Records     []model.TerminalRecord
	Options     Options
}

// RunDevices runs independent devices in parallel, one session per device and
// at most limit at a time (0 means no limit). Results are indexed like jobs; a
// device whose session could not be opened has a nil result and contributes to
// the joined error.
func RunDevices(ctx context.Context, jobs []Job, limit int) ([]*model.BatchResult, error) {
	results := make([]*model.BatchResult, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res, err := New(job.Credentials, job.Dial, job.Options).Run(ctx, job.Records)
			if err != nil {
				errs[i] = fmt.Errorf("device %s: %w", job.Credentials.Name, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}

	_ = g.Wait()
	return results, errors.Join(errs...)
}
