package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-batch/engine/batch"
	"github.com/Carmen-Shannon/oxy-batch/engine/camera"
	"github.com/Carmen-Shannon/oxy-batch/engine/profiler"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/window"
	"github.com/go-gl/glfw/v3.3/glfw"
)

const (
	// orbitSpeed is the camera rotation in radians per dragged pixel.
	orbitSpeed = 0.005
	// keyOrbitStep is the camera rotation in radians per arrow key event.
	keyOrbitStep = 0.05
	// zoomStep is the radius change per scroll notch.
	zoomStep = 0.1
)

// The wgpu renderer is the device batch groups draw through.
var _ batch.Device = renderer.Renderer(nil)

// engine implements the Engine interface.
// Coordinates the tick and render goroutines with the window's message loop.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once
	closeOnce   sync.Once

	logger *slog.Logger

	window     window.Window
	renderer   renderer.Renderer
	camera     camera.Camera
	dispatcher *batch.Dispatcher

	batchConfig     batch.Config
	dispatchOptions []batch.DispatcherBuilderOption

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	frameCallback  func(deltaTime float32) []batch.Renderable

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the engine.
// It owns the window, renderer, camera and batch dispatcher, and drives one frame per render loop
// iteration: collect renderables, dispatch them, draw the batches and present.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the renderer the batches are drawn with.
	Renderer() renderer.Renderer

	// Camera returns the camera whose matrices every template reads.
	Camera() camera.Camera

	// Dispatcher returns the batch dispatcher.
	Dispatcher() *batch.Dispatcher

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for simulation updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function that supplies each frame's renderables.
	// It runs on the render goroutine; the returned slice is only read until the next call.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds and returning the frame's objects
	SetFrameCallback(callback func(deltaTime float32) []batch.Renderable)

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run starts the engine and blocks until the window closes.
	Run()

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine. A window, renderer and camera are created when the options do
// not supply them, and the camera's bind group is shared with every batch group at group 0.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: a window creation or batch configuration error
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		logger:          slog.Default(),
		batchConfig:     batch.DefaultConfig(),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.window == nil {
		w, err := window.NewWindow()
		if err != nil {
			return nil, err
		}
		e.window = w
	}
	if e.renderer == nil {
		e.renderer = renderer.NewRenderer(renderer.BackendTypeWGPU, e.window)
	}
	if e.camera == nil {
		e.camera = camera.NewCamera()
	}
	if h := e.window.Height(); h > 0 {
		e.camera.SetAspect(float32(e.window.Width()) / float32(h))
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}

	dispatchOptions := append([]batch.DispatcherBuilderOption{
		batch.WithConfig(e.batchConfig),
		batch.WithSharedBindGroup(0, e.camera.BindGroupProvider()),
	}, e.dispatchOptions...)
	d, err := batch.NewDispatcher(dispatchOptions...)
	if err != nil {
		return nil, err
	}
	e.dispatcher = d

	e.bindInput()
	return e, nil
}

// bindInput wires window resizes and the orbit controls to the renderer and camera.
func (e *engine) bindInput() {
	e.window.SetResizeCallback(func(width, height int) {
		if width <= 0 || height <= 0 {
			return
		}
		e.renderer.Resize(width, height)
		e.camera.SetAspect(float32(width) / float32(height))
	})
	e.window.SetDragCallback(func(dx, dy float32) {
		e.camera.Orbit(-dx*orbitSpeed, dy*orbitSpeed)
	})
	e.window.SetScrollCallback(func(delta float32) {
		e.camera.Zoom(1 - delta*zoomStep)
	})
	e.window.SetKeyDownCallback(func(keyCode uint32) {
		switch glfw.Key(keyCode) {
		case glfw.KeyLeft:
			e.camera.Orbit(keyOrbitStep, 0)
		case glfw.KeyRight:
			e.camera.Orbit(-keyOrbitStep, 0)
		case glfw.KeyUp:
			e.camera.Orbit(0, keyOrbitStep)
		case glfw.KeyDown:
			e.camera.Orbit(0, -keyOrbitStep)
		case glfw.KeyEqual, glfw.KeyKPAdd:
			e.camera.Zoom(1 - zoomStep)
		case glfw.KeyMinus, glfw.KeyKPSubtract:
			e.camera.Zoom(1 + zoomStep)
		}
	})
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) Dispatcher() *batch.Dispatcher {
	return e.dispatcher
}

func (e *engine) Run() {
	e.running = true
	e.window.SetUpdateCallback(func() {
		select {
		case <-e.quitChannel:
			e.wg.Wait()
			e.closeWindow()
		default:
		}
	})
	e.handle()
	e.window.ProcessMessages()
	e.signalQuit()
	e.wg.Wait()
	e.dispatcher.Close(e.renderer)
	e.closeWindow()
}

// closeWindow destroys the window once. Must be called from the main goroutine.
func (e *engine) closeWindow() {
	e.closeOnce.Do(func() {
		if err := e.window.Close(); err != nil {
			e.logger.Debug("window close", "err", err)
		}
	})
}

// Quit signals all engine goroutines to stop; the window closes on its next message loop iteration.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handle launches the tick, render and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			e.renderFrame(dt)

			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// renderFrame runs one frame: dispatch, batched draws, camera upload, present.
// The camera write follows the draws because the first pipeline's bind group creates the
// camera's uniform buffers; queued writes are flushed before the frame is submitted.
func (e *engine) renderFrame(dt float32) {
	var objects []batch.Renderable
	if e.frameCallback != nil {
		objects = e.frameCallback(dt)
	}

	// Configuration errors are reported once per frame; the affected objects are skipped.
	if err := e.dispatcher.Dispatch(objects); err != nil {
		e.logger.Warn("dispatch", "err", err)
	}

	if err := e.renderer.BeginFrame(); err != nil {
		e.logger.Debug("frame skipped", "err", err)
		return
	}
	if err := e.dispatcher.RenderAll(e.renderer); err != nil {
		e.logger.Warn("render", "err", err)
	}
	e.renderer.WriteBuffers(e.camera.Writes())
	e.renderer.EndFrame()
	e.renderer.Present()

	if e.profilingEnabled {
		e.profiler.Tick(e.dispatcher.Stats())
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running {
		e.engineTickRate = newRate
		return
	}

	// Non-blocking send; a pending update is replaced.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetFrameCallback(callback func(deltaTime float32) []batch.Renderable) {
	e.frameCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
