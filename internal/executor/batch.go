package executor

import "context"

// ExecuteBatch runs every command in reqs against the same host in order.
// It stops after a non-zero exit when stopOnError is set; an error from
// Execute (blocked command, timeout, connect failure) always ends the batch
// and is returned with the results gathered so far.
func (e *Executor) ExecuteBatch(ctx context.Context, reqs []Request, stopOnError bool) ([]Result, error) {
	results := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		res, err := e.Execute(ctx, req)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if stopOnError && res.ExitCode != 0 {
			break
		}
	}
	return results, nil
}
