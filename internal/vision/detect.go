package vision

import (
	"fmt"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detector runs RetinaFace (det_10g) face detection via ONNX Runtime.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

// det_10g predicts at three feature-map strides with two anchors per cell.
var detStrides = []int{8, 16, 32}

const anchorsPerCell = 2

const nmsIoUThreshold = 0.4

// NewDetector loads the RetinaFace ONNX model. opts may be nil for ORT
// defaults.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	inputW, inputH := 640, 640

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// det_10g output shapes carry no batch dimension:
	// scores [N,1], boxes [N,4], landmarks [N,10] per stride, where
	// N = (640/stride)^2 * 2.
	type outputSpec struct {
		name  string
		shape ort.Shape
	}

	outputs := []outputSpec{
		{"448", ort.NewShape(12800, 1)},  // scores stride 8
		{"471", ort.NewShape(3200, 1)},   // scores stride 16
		{"494", ort.NewShape(800, 1)},    // scores stride 32
		{"451", ort.NewShape(12800, 4)},  // boxes stride 8
		{"474", ort.NewShape(3200, 4)},   // boxes stride 16
		{"497", ort.NewShape(800, 4)},    // boxes stride 32
		{"454", ort.NewShape(12800, 10)}, // landmarks stride 8
		{"477", ort.NewShape(3200, 10)},  // landmarks stride 16
		{"500", ort.NewShape(800, 10)},   // landmarks stride 32
	}

	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))

	for i, spec := range outputs {
		outputNames[i] = spec.name
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %d (%s): %w", i, spec.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		threshold:     threshold,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Detect runs detection on a preprocessed frame. imgData is CHW
// [3, inputH, inputW], normalized; origW/origH are the source frame size
// used to scale boxes back to pixel coordinates.
func (d *Detector) Detect(imgData []float32, origW, origH int) ([]Observation, error) {
	copy(d.inputTensor.GetData(), imgData)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	return suppressOverlaps(d.decode(origW, origH), nmsIoUThreshold), nil
}

// decode turns the anchor-relative stride outputs into pixel-space boxes.
func (d *Detector) decode(origW, origH int) []Observation {
	var found []Observation

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range detStrides {
		scores := d.outputTensors[si].GetData()
		boxes := d.outputTensors[si+3].GetData()

		fmW := d.inputW / stride
		fmH := d.inputH / stride

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerCell; a++ {
					score := scores[idx]
					if score >= d.threshold {
						anchorX := float32(cx) * float32(stride)
						anchorY := float32(cy) * float32(stride)

						// Box outputs are distances from the anchor
						// center to each edge, in stride units.
						st := float32(stride)
						x1 := (anchorX - boxes[idx*4+0]*st) * scaleW
						y1 := (anchorY - boxes[idx*4+1]*st) * scaleH
						x2 := (anchorX + boxes[idx*4+2]*st) * scaleW
						y2 := (anchorY + boxes[idx*4+3]*st) * scaleH

						found = append(found, Observation{
							BBox: [4]float32{
								clampF(x1, 0, float32(origW)),
								clampF(y1, 0, float32(origH)),
								clampF(x2, 0, float32(origW)),
								clampF(y2, 0, float32(origH)),
							},
							Confidence: score,
						})
					}
					idx++
				}
			}
		}
	}

	return found
}

// InputSize returns the model's expected input dimensions.
func (d *Detector) InputSize() (int, int) {
	return d.inputW, d.inputH
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// suppressOverlaps performs non-maximum suppression, keeping the
// highest-confidence box in each overlapping cluster.
func suppressOverlaps(obs []Observation, iouThreshold float32) []Observation {
	if len(obs) == 0 {
		return obs
	}

	sort.Slice(obs, func(i, j int) bool {
		return obs[i].Confidence > obs[j].Confidence
	})

	keep := make([]bool, len(obs))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(obs); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(obs); j++ {
			if !keep[j] {
				continue
			}
			if iou(obs[i].BBox, obs[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []Observation
	for i, o := range obs {
		if keep[i] {
			result = append(result, o)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
