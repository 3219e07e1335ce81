package main

import (
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkframe/vkframe"
)

const (
	windowTitle  = "Triangle"
	windowWidth  = 800
	windowHeight = 600
)

func init() {
	// SDL requires its calls on the thread that initialized it.
	runtime.LockOSThread()
}

func run() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return err
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow(windowTitle,
		sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		windowWidth, windowHeight,
		sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return err
	}
	defer window.Destroy()

	ctx, err := vkframe.NewContext(window, vkframe.Config{
		AppName:           windowTitle,
		EnableValidation:  os.Getenv("TRIANGLE_VALIDATION") != "",
		ShaderFS:          os.DirFS(resourcePath()),
		PipelineCachePath: "pipeline_cache.bin",
	})
	if err != nil {
		return err
	}
	defer ctx.Destroy()

	rendering := true

appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
					ctx.NoteResize()
				case sdl.WINDOWEVENT_RESIZED:
					w, h := window.GetSize()
					if w > 0 && h > 0 {
						rendering = true
						ctx.NoteResize()
					} else {
						rendering = false
					}
				}
			}
		}
		if rendering {
			err := ctx.DrawFrame()
			if err != nil {
				return err
			}
		}
	}

	err = ctx.WaitIdle()
	if err != nil {
		return err
	}

	stats := ctx.FrameStats()
	log.Printf("rendered %d frames, %v cpu time per frame", stats.Frames, stats.Average())
	return nil
}

// resourcePath resolves the shader directory next to the executable,
// falling back to the working directory during development.
func resourcePath() string {
	exe, err := os.Executable()
	if err != nil {
		return "resources"
	}
	candidate := filepath.Join(filepath.Dir(exe), "resources")
	if _, err := os.Stat(candidate); err != nil {
		return "resources"
	}
	return candidate
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("%+v", err)
	}
}
