package scene

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"
)

type baser interface {
	base() *node
}

// node is the in-memory Actor implementation shared by every actor kind.
type node struct {
	stage  *MemoryStage
	parent *group

	id       int
	name     string
	x, y     int
	width    int
	height   int
	scaleX   float64
	scaleY   float64
	opacity  float64
	visible  bool
	dead     bool
	anims    map[string]Animation
	children []Actor
}

func (n *node) base() *node { return n }

func (n *node) ID() int          { return n.id }
func (n *node) Name() string     { return n.name }
func (n *node) X() int           { return n.x }
func (n *node) Y() int           { return n.y }
func (n *node) Width() int       { return n.width }
func (n *node) Height() int      { return n.height }
func (n *node) ScaleX() float64  { return n.scaleX }
func (n *node) ScaleY() float64  { return n.scaleY }
func (n *node) Opacity() float64 { return n.opacity }
func (n *node) Visible() bool    { return n.visible }
func (n *node) Destroyed() bool  { return n.dead }

func (n *node) animate(prop string, from, to float64, d time.Duration) {
	if d <= 0 || from == to {
		delete(n.anims, prop)
		return
	}
	n.anims[prop] = Animation{
		Property: prop,
		From:     from,
		To:       to,
		Start:    n.stage.now(),
		Duration: d,
	}
}

// current returns the value the renderer is showing for prop right now, so
// a retargeted animation starts where the previous one was.
func (n *node) current(prop string, target float64) float64 {
	if a, ok := n.anims[prop]; ok {
		return a.ValueAt(n.stage.now())
	}
	return target
}

func (n *node) Move(x, y int, d time.Duration) {
	n.animate(PropX, n.current(PropX, float64(n.x)), float64(x), d)
	n.animate(PropY, n.current(PropY, float64(n.y)), float64(y), d)
	n.x, n.y = x, y
}

func (n *node) SetSize(width, height int) {
	n.width, n.height = width, height
}

func (n *node) Scale(sx, sy float64, d time.Duration) {
	n.animate(PropScaleX, n.current(PropScaleX, n.scaleX), sx, d)
	n.animate(PropScaleY, n.current(PropScaleY, n.scaleY), sy, d)
	n.scaleX, n.scaleY = sx, sy
}

func (n *node) SetOpacity(opacity float64, d time.Duration) {
	opacity = clamp01(opacity)
	n.animate(PropOpacity, n.current(PropOpacity, n.opacity), opacity, d)
	n.opacity = opacity
}

func (n *node) Show() { n.visible = true }
func (n *node) Hide() { n.visible = false }

func (n *node) Animation(property string) (Animation, bool) {
	a, ok := n.anims[property]
	return a, ok
}

func (n *node) Raise(sibling Actor) {
	n.restack(sibling, true)
}

func (n *node) Lower(sibling Actor) {
	n.restack(sibling, false)
}

func (n *node) RaiseToTop()    { n.restack(nil, true) }
func (n *node) LowerToBottom() { n.restack(nil, false) }

func (n *node) restack(sibling Actor, above bool) {
	p := n.parent
	if p == nil {
		return
	}
	self := p.indexOf(n)
	if self < 0 {
		return
	}
	me := p.children[self]
	p.children = append(p.children[:self], p.children[self+1:]...)

	idx := -1
	if sibling != nil {
		if sb, ok := sibling.(baser); ok && sb.base().parent == p {
			idx = p.indexOf(sb.base())
		}
	}
	switch {
	case idx < 0 && above:
		p.children = append(p.children, me)
	case idx < 0:
		p.children = append([]Actor{me}, p.children...)
	default:
		if above {
			idx++
		}
		p.children = append(p.children, nil)
		copy(p.children[idx+1:], p.children[idx:])
		p.children[idx] = me
	}
}

func (n *node) Destroy() {
	if n.dead {
		return
	}
	n.dead = true
	kids := n.children
	n.children = nil
	for _, c := range kids {
		c.Destroy()
	}
	if n.parent != nil {
		if i := n.parent.indexOf(n); i >= 0 {
			n.parent.children = append(n.parent.children[:i], n.parent.children[i+1:]...)
		}
		n.parent = nil
	}
}

type group struct {
	node
}

func (g *group) indexOf(n *node) int {
	for i, c := range g.children {
		if b, ok := c.(baser); ok && b.base() == n {
			return i
		}
	}
	return -1
}

// Add appends child on top of the group, detaching it from any previous parent.
func (g *group) Add(child Actor) {
	b, ok := child.(baser)
	if !ok {
		return
	}
	cn := b.base()
	if cn.parent != nil {
		if i := cn.parent.indexOf(cn); i >= 0 {
			cn.parent.children = append(cn.parent.children[:i], cn.parent.children[i+1:]...)
		}
	}
	cn.parent = g
	g.children = append(g.children, child)
}

func (g *group) Children() []Actor {
	out := make([]Actor, len(g.children))
	copy(out, g.children)
	return out
}

type rectangle struct {
	node
	color uint32
}

type imageActor struct {
	node
	path string
}

type clone struct {
	node
	source Actor
}

type windowActor struct {
	node
	window uint32
	shape  []Rect
	shadow bool
}

func (w *windowActor) Window() uint32 { return w.window }

func (w *windowActor) SetShape(mask []Rect) {
	if len(mask) == 0 {
		w.shape = nil
		return
	}
	w.shape = append([]Rect(nil), mask...)
}

func (w *windowActor) Shape() []Rect {
	return append([]Rect(nil), w.shape...)
}

func (w *windowActor) SetShadowVisible(visible bool) { w.shadow = visible }
func (w *windowActor) ShadowVisible() bool          { return w.shadow }

// MemoryStage keeps the actor graph in memory. It holds the state a
// renderer would draw; it does not rasterize anything.
type MemoryStage struct {
	nextID int
	root   *group
	now    func() time.Time
}

var _ Stage = (*MemoryStage)(nil)

// NewMemoryStage creates an empty stage with a visible default group.
func NewMemoryStage() *MemoryStage {
	s := &MemoryStage{now: time.Now}
	s.root = &group{}
	s.init(&s.root.node, "stage")
	s.root.visible = true
	return s
}

// SetClock overrides the stage's time source.
func (s *MemoryStage) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *MemoryStage) init(n *node, name string) {
	s.nextID++
	n.stage = s
	n.id = s.nextID
	n.name = name
	n.scaleX, n.scaleY = 1, 1
	n.opacity = 1
	n.anims = make(map[string]Animation)
}

// Default returns the group new actors are placed in.
func (s *MemoryStage) Default() Group { return s.root }

func (s *MemoryStage) CreateRectangle(name string, color uint32) Actor {
	r := &rectangle{color: color}
	s.init(&r.node, name)
	s.root.Add(r)
	return r
}

// CreateImage creates an actor sized to the image at path.
func (s *MemoryStage) CreateImage(name, path string) (Actor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	a := &imageActor{path: path}
	s.init(&a.node, name)
	a.width, a.height = cfg.Width, cfg.Height
	s.root.Add(a)
	return a, nil
}

func (s *MemoryStage) CreateGroup(name string) Group {
	g := &group{}
	s.init(&g.node, name)
	s.root.Add(g)
	return g
}

// CreateClone creates an actor mirroring source's size.
func (s *MemoryStage) CreateClone(name string, source Actor) Actor {
	c := &clone{source: source}
	s.init(&c.node, name)
	if source != nil {
		c.width, c.height = source.Width(), source.Height()
	}
	s.root.Add(c)
	return c
}

// CreateWindowActor creates a hidden actor for a client window with its
// shadow enabled.
func (s *MemoryStage) CreateWindowActor(window uint32, name string) WindowActor {
	w := &windowActor{window: window, shadow: true}
	s.init(&w.node, name)
	s.root.Add(w)
	return w
}

// Tick drops finished animations.
func (s *MemoryStage) Tick() {
	now := s.now()
	var walk func(a Actor)
	walk = func(a Actor) {
		b, ok := a.(baser)
		if !ok {
			return
		}
		n := b.base()
		for prop, anim := range n.anims {
			if anim.Done(now) {
				delete(n.anims, prop)
			}
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(s.root)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
