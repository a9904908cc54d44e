package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically removes render scratch directories that outlived the
// retention window. Scratch dirs are normally deleted right after a render;
// this sweeps up whatever a crash or kill left behind.
type Janitor struct {
	cron   *cron.Cron
	dir    string
	maxAge time.Duration
	spec   string
}

func New(dir string, maxAge time.Duration, spec string) *Janitor {
	return &Janitor{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		dir:    dir,
		maxAge: maxAge,
		spec:   spec,
	}
}

func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.spec, func() {
		removed := j.Sweep()
		if removed > 0 {
			log.Printf("🧹 Cleanup removed %d stale render dirs", removed)
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	log.Printf("📅 Cleanup scheduler started (%s, retention %s)", j.spec, j.maxAge)
	return nil
}

func (j *Janitor) Stop() {
	if j.cron != nil {
		ctx := j.cron.Stop()
		<-ctx.Done()
	}
	log.Println("📅 Cleanup scheduler stopped")
}

// Sweep removes stale scratch dirs and reports how many went away.
func (j *Janitor) Sweep() int {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		log.Printf("cleanup: failed to read %s: %v", j.dir, err)
		return 0
	}
	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Printf("cleanup: failed to remove %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed
}
