package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// FuncJob adapts a function into a Job
type FuncJob[T any] struct {
	Key string
	Fn  func(ctx context.Context) (T, error)
}

// Execute runs the wrapped function
func (j *FuncJob[T]) Execute(ctx context.Context) Result {
	value, err := j.Fn(ctx)
	return &ValueResult[T]{Key: j.Key, Value: value, Error: err}
}

// ValueResult carries a typed value and the key of the job that produced it
type ValueResult[T any] struct {
	Key   string
	Value T
	Error error
}

// GetError returns the job error
func (r *ValueResult[T]) GetError() error {
	return r.Error
}

// RunAll executes fns on a pool of the given size and returns results keyed by job key
func RunAll[T any](ctx context.Context, workers int, jobs []*FuncJob[T]) map[string]*ValueResult[T] {
	out := make(map[string]*ValueResult[T], len(jobs))
	if len(jobs) == 0 {
		return out
	}

	pool := NewPool(ctx, workers)
	pool.Start()
	for _, job := range jobs {
		if !pool.Submit(job) {
			break
		}
	}

	for _, res := range pool.Wait() {
		if vr, ok := res.(*ValueResult[T]); ok {
			out[vr.Key] = vr
		}
	}
	return out
}

// ReadLinesFromFile reads non-empty, non-comment lines from a file, deduplicated in order
func ReadLinesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}
