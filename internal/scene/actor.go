package scene

import "time"

// Rect describes a rectangular region in stage coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Property names used for animations.
const (
	PropX       = "x"
	PropY       = "y"
	PropScaleX  = "scale_x"
	PropScaleY  = "scale_y"
	PropOpacity = "opacity"
)

// Animation records an in-flight transition of a single actor property.
// Getters on Actor always report the target value; a renderer interpolates
// between From and To using Start and Duration.
type Animation struct {
	Property string
	From     float64
	To       float64
	Start    time.Time
	Duration time.Duration
}

// Done reports whether the animation has finished at now.
func (a Animation) Done(now time.Time) bool {
	return !now.Before(a.Start.Add(a.Duration))
}

// ValueAt returns the linearly interpolated value at now.
func (a Animation) ValueAt(now time.Time) float64 {
	if a.Duration <= 0 || a.Done(now) {
		return a.To
	}
	elapsed := now.Sub(a.Start)
	if elapsed <= 0 {
		return a.From
	}
	frac := float64(elapsed) / float64(a.Duration)
	return a.From + (a.To-a.From)*frac
}

// Actor is the compositor-side visual counterpart of something on screen.
type Actor interface {
	ID() int
	Name() string

	X() int
	Y() int
	Width() int
	Height() int
	ScaleX() float64
	ScaleY() float64
	Opacity() float64
	Visible() bool

	Move(x, y int, d time.Duration)
	SetSize(width, height int)
	Scale(sx, sy float64, d time.Duration)
	SetOpacity(opacity float64, d time.Duration)
	Show()
	Hide()

	// Raise places the actor directly above sibling, or on top of its
	// parent when sibling is nil or lives in another group.
	Raise(sibling Actor)
	// Lower places the actor directly below sibling, or at the bottom of
	// its parent when sibling is nil or lives in another group.
	Lower(sibling Actor)
	RaiseToTop()
	LowerToBottom()

	Animation(property string) (Animation, bool)
	Destroy()
	Destroyed() bool
}

// Group is an actor containing other actors, ordered bottom to top.
type Group interface {
	Actor
	Add(child Actor)
	Children() []Actor
}

// WindowActor mirrors a redirected client window.
type WindowActor interface {
	Actor
	Window() uint32
	SetShape(mask []Rect)
	Shape() []Rect
	SetShadowVisible(visible bool)
	ShadowVisible() bool
}

// Stage creates actors and owns the default group they are added to.
type Stage interface {
	Default() Group
	CreateRectangle(name string, color uint32) Actor
	CreateImage(name, path string) (Actor, error)
	CreateGroup(name string) Group
	CreateClone(name string, source Actor) Actor
	CreateWindowActor(window uint32, name string) WindowActor
}
