// Package progress renders transfer progress on a terminal.
package progress

import (
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/amaumene/harvestarr/internal/models"
)

// Bars draws one bar per transfer task
type Bars struct {
	p    *mpb.Progress
	mu   sync.Mutex
	bars map[string]*mpb.Bar
}

// NewBars creates progress bars writing to out
func NewBars(out io.Writer) *Bars {
	return &Bars{
		p:    mpb.New(mpb.WithOutput(out), mpb.WithWidth(40)),
		bars: make(map[string]*mpb.Bar),
	}
}

// Update applies a task update. It is safe for concurrent use and can be
// passed directly as a TransferController progress callback.
func (b *Bars) Update(u models.ProgressUpdate) {
	bar := b.bar(u)

	switch u.Status {
	case models.TaskStatusCompleted:
		bar.SetCurrent(100)
	case models.TaskStatusFailed:
		bar.Abort(false)
	default:
		bar.SetCurrent(int64(u.Percent))
	}
}

func (b *Bars) bar(u models.ProgressUpdate) *mpb.Bar {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bar, ok := b.bars[u.TaskID]; ok {
		return bar
	}

	name := u.FileName
	if name == "" {
		name = u.ItemID
	}
	bar := b.p.AddBar(100,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{C: decor.DindentRight | decor.DextraSpace}),
		),
		mpb.AppendDecorators(
			decor.OnAbort(decor.Percentage(decor.WCSyncSpace), "failed"),
		),
	)
	b.bars[u.TaskID] = bar
	return bar
}

// Wait blocks until every bar has finished rendering. Bars of tasks that
// never reported a terminal status are aborted first.
func (b *Bars) Wait() {
	b.mu.Lock()
	for _, bar := range b.bars {
		if !bar.Completed() {
			bar.Abort(false)
		}
	}
	b.mu.Unlock()

	b.p.Wait()
}
