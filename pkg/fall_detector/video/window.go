package fall_detector_video

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	pose "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/pose"
	runner "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/runner"
)

const (
	WINDOW_TITLE = "Fall Detection"
	KEY_ESC      = 27
)

var (
	landmark_color   = color.RGBA{R: 245, G: 117, B: 66, A: 255}
	connection_color = color.RGBA{R: 245, G: 66, B: 230, A: 255}
)

// Window opens its HighGUI window on the first Show, from the goroutine
// that runs the frame loop.
type Window struct {
	title string
	win   *gocv.Window
	key   int
}

func (w *Window) Show(img pose.Image, overlay *runner.Overlay) error {
	frame, ok := img.(*Frame)
	if !ok {
		return ErrUnexpectedFrame
	}

	if overlay != nil {
		draw_landmarks(frame.mat, overlay.Landmarks)
		gocv.PutText(frame.mat, overlay.Text, image.Pt(50, 50), gocv.FontHersheySimplex, 1, overlay.Color, 3)
	}

	if w.win == nil {
		w.win = gocv.NewWindow(w.title)
	}
	w.win.IMShow(*frame.mat)
	w.key = w.win.WaitKey(1)

	return nil
}

func (w *Window) QuitRequested() bool {
	return w.key&0xff == KEY_ESC
}

func (w *Window) Close() error {
	if w.win == nil {
		return nil
	}
	return w.win.Close()
}

func NewWindow() *Window {
	return &Window{title: WINDOW_TITLE, key: -1}
}

func to_pixel(lm pose.Landmark, width, height int) image.Point {
	return image.Pt(int(lm.X*float64(width)), int(lm.Y*float64(height)))
}

func draw_landmarks(mat *gocv.Mat, lms *pose.Landmarks) {
	if lms == nil {
		return
	}

	width, height := mat.Cols(), mat.Rows()

	for _, conn := range pose.POSE_CONNECTIONS {
		a, ok_a := lms.Get(conn[0])
		b, ok_b := lms.Get(conn[1])
		if !ok_a || !ok_b {
			continue
		}
		gocv.Line(mat, to_pixel(a, width, height), to_pixel(b, width, height), connection_color, 2)
	}

	for _, lm := range lms.Points() {
		gocv.Circle(mat, to_pixel(lm, width, height), 2, landmark_color, 2)
	}
}
