package components

import (
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
)

// FlashBar is a progress bar whose fill follows the flash percentage on a
// spring instead of jumping between loader blocks.
type FlashBar struct {
	bar      progress.Model
	spring   harmonica.Spring
	pos      float64
	velocity float64
	target   float64
}

func NewFlashBar(width int) *FlashBar {
	return &FlashBar{
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(width), progress.WithoutPercentage()),
		spring: harmonica.NewSpring(harmonica.FPS(60), 8.0, 1.0),
	}
}

func (f *FlashBar) Init() tea.Cmd { return nil }

func (f *FlashBar) Update(msg tea.Msg) (tea.Model, tea.Cmd) { return f, nil }

// SetPercent moves the target. A percentage of zero resets the bar at once
// so the next flash starts empty.
func (f *FlashBar) SetPercent(pct int) {
	if pct <= 0 {
		f.pos, f.velocity, f.target = 0, 0, 0
		return
	}
	f.target = float64(min(pct, 100)) / 100
}

// Step advances the spring by one frame.
func (f *FlashBar) Step() {
	f.pos, f.velocity = f.spring.Update(f.pos, f.velocity, f.target)
}

// Settled reports whether the fill has reached its target.
func (f *FlashBar) Settled() bool {
	d := f.target - f.pos
	return d < 0.001 && d > -0.001 && f.velocity < 0.001 && f.velocity > -0.001
}

func (f *FlashBar) Position() float64 { return f.pos }

func (f *FlashBar) SetWidth(w int) {
	if w > 10 {
		f.bar.Width = w
	}
}

func (f *FlashBar) View() string {
	p := f.pos
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return f.bar.ViewAs(p)
}
