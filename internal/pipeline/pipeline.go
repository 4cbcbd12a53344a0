// Package pipeline runs the export for a list of repositories: fetch,
// assemble, render, write and optionally publish, one repository at a time
// per worker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/StinkyLord/gh-sbom-export/internal/logger"
	"github.com/StinkyLord/gh-sbom-export/internal/model"
	"github.com/StinkyLord/gh-sbom-export/internal/output"
	"github.com/StinkyLord/gh-sbom-export/internal/transform"
)

// Fetcher supplies the raw records and release information of a repository.
// *github.Client implements it.
type Fetcher interface {
	FetchSBOM(ctx context.Context, repo model.Repository) ([]model.SourceRecord, error)
	LatestRelease(ctx context.Context, repo model.Repository) (*string, error)
}

// Publisher receives a copy of every written document.
// *output.S3Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, fileName string, data []byte) (string, error)
}

// Options tune a Runner.
type Options struct {
	// OutputDir receives one {repo}.json per repository; "-" means stdout.
	OutputDir string

	// Workers is the number of repositories processed concurrently (default: 1).
	Workers int

	// Publisher, if set, uploads every written document.
	Publisher Publisher

	// Progress receives a progress bar; nil disables it.
	Progress io.Writer

	// Now stamps documents (default: time.Now).
	Now func() time.Time
}

// RepoResult is the outcome for one repository.
type RepoResult struct {
	Repository model.Repository
	FileName   string
	Path       string // where the document was written, "-" for stdout
	Published  string // publisher location, if any

	Records    int
	Components int
	Excluded   int
	Malformed  int
	Duplicates int

	// RulesVersion is the rule set the components were filtered with.
	RulesVersion string

	Err error
}

// Result holds the per-repository outcomes in input order.
type Result struct {
	Repos   []RepoResult
	Written int
	Failed  int
}

// Err summarises the failed repositories, or returns nil.
func (r *Result) Err() error {
	if r.Failed == 0 {
		return nil
	}
	var errs []error
	for _, rr := range r.Repos {
		if rr.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rr.Repository.Slug(), rr.Err))
		}
	}
	return fmt.Errorf("%d of %d repositories failed: %w", r.Failed, len(r.Repos), errors.Join(errs...))
}

// Runner processes repositories. One repository failing never stops the
// others.
type Runner struct {
	fetcher   Fetcher
	assembler *transform.Assembler
	opts      Options
}

// New creates a Runner.
func New(fetcher Fetcher, assembler *transform.Assembler, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{fetcher: fetcher, assembler: assembler, opts: opts}
}

// Run processes every repository and waits for all of them.
func (r *Runner) Run(ctx context.Context, repos []model.Repository) *Result {
	log := logger.Logger()
	names := FileNames(repos)
	results := make([]RepoResult, len(repos))

	bar := r.newProgressBar(len(repos))
	jobs := make(chan int, len(repos))
	var wg sync.WaitGroup

	workers := r.opts.Workers
	if workers > len(repos) {
		workers = len(repos)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				repo := repos[i]
				if bar != nil {
					bar.Describe(repo.Slug())
				}
				results[i] = r.processRepo(ctx, repo, names[i])
				if bar != nil {
					if err := bar.Add(1); err != nil {
						log.Debugf("failed to add to progress bar: %v", err)
					}
				}
			}
		}()
	}

	for i := range repos {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if bar != nil {
		if err := bar.Finish(); err != nil {
			log.Debugf("failed to finish progress bar: %v", err)
		}
	}

	res := &Result{Repos: results}
	for _, rr := range results {
		if rr.Err != nil {
			res.Failed++
			log.Errorf("%s: %v", rr.Repository.Slug(), rr.Err)
		} else {
			res.Written++
		}
	}
	log.Infof("Exported %d of %d repositories", res.Written, len(repos))
	return res
}

func (r *Runner) processRepo(ctx context.Context, repo model.Repository, fileName string) RepoResult {
	log := logger.Logger()
	rr := RepoResult{Repository: repo, FileName: fileName}

	if err := ctx.Err(); err != nil {
		rr.Err = err
		return rr
	}

	records, err := r.fetcher.FetchSBOM(ctx, repo)
	if err != nil {
		rr.Err = err
		return rr
	}
	rr.Records = len(records)

	tag, err := r.fetcher.LatestRelease(ctx, repo)
	if err != nil {
		if ctx.Err() != nil {
			rr.Err = ctx.Err()
			return rr
		}
		log.Warnf("%s: release lookup failed, root version will be %q: %v", repo.Slug(), model.UnknownVersion, err)
		tag = nil
	}

	asm, err := r.assembler.Assemble(repo, records, tag)
	if err != nil {
		rr.Err = fmt.Errorf("assembling components: %w", err)
		return rr
	}
	rr.Components = len(asm.Components)
	rr.Excluded = asm.Excluded
	rr.Malformed = asm.Malformed
	rr.Duplicates = asm.Duplicates
	rr.RulesVersion = asm.RulesVersion

	doc := output.NewDocument(asm.Root, asm.Components, r.opts.Now())
	data, err := output.Render(doc)
	if err != nil {
		rr.Err = fmt.Errorf("rendering document: %w", err)
		return rr
	}

	rr.Path, err = output.WriteDocument(r.opts.OutputDir, fileName, data)
	if err != nil {
		rr.Err = err
		return rr
	}
	log.Infof("%s: wrote %d components to %s (%d excluded, %d malformed, %d duplicates, rules %s)",
		repo.Slug(), rr.Components, rr.Path, rr.Excluded, rr.Malformed, rr.Duplicates, rr.RulesVersion)

	if r.opts.Publisher != nil {
		rr.Published, err = r.opts.Publisher.Publish(ctx, fileName, data)
		if err != nil {
			rr.Err = fmt.Errorf("publishing document: %w", err)
			return rr
		}
		log.Infof("%s: published to %s", repo.Slug(), rr.Published)
	}
	return rr
}

func (r *Runner) newProgressBar(total int) *progressbar.ProgressBar {
	if r.opts.Progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.opts.Progress),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// FileNames picks the output file name of every repository: "{repo}.json",
// or "{owner}-{repo}.json" when two repositories of the run share a name.
func FileNames(repos []model.Repository) []string {
	count := make(map[string]int, len(repos))
	for _, repo := range repos {
		count[strings.ToLower(repo.Name)]++
	}
	names := make([]string, len(repos))
	for i, repo := range repos {
		if count[strings.ToLower(repo.Name)] > 1 {
			names[i] = repo.Owner + "-" + repo.Name + ".json"
		} else {
			names[i] = repo.Name + ".json"
		}
	}
	return names
}
