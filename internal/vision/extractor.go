package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"path/filepath"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/observability"
)

// ErrNoFace is returned by EmbedImage when the detector finds nothing.
var ErrNoFace = errors.New("no face detected in image")

// Observation is one face found in a frame: where it is and what it
// embeds to. Embedding is nil until the extractor fills it in.
type Observation struct {
	BBox       [4]float32 // x1, y1, x2, y2 in source pixel coordinates
	Confidence float32
	Embedding  []float32
}

// Extractor turns images into face embeddings. It owns both ONNX sessions
// and fails construction if either model cannot be loaded, so a scanner
// never starts half-blind.
type Extractor struct {
	detector *Detector
	embedder *Embedder
}

func NewExtractor(cfg config.VisionConfig, opts *ort.SessionOptions) (*Extractor, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), opts)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, opts)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &Extractor{detector: det, embedder: emb}, nil
}

// ExtractAll detects every face in the frame and embeds each one. Faces
// whose crop or embedding fails are skipped with a warning rather than
// failing the whole frame.
func (x *Extractor) ExtractAll(img image.Image) ([]Observation, error) {
	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	start := time.Now()
	detInput := preprocessForDetection(img, x.detector.inputW, x.detector.inputH)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	start = time.Now()
	observations, err := x.detector.Detect(detInput, origW, origH)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	result := observations[:0]
	for _, obs := range observations {
		crop := CropFace(img, obs.BBox)
		if crop == nil {
			continue
		}

		start = time.Now()
		embInput := preprocessForEmbedding(crop, x.embedder.inputW, x.embedder.inputH)
		embedding, err := x.embedder.Embed(embInput)
		if err != nil {
			slog.Warn("embed face", "error", err, "bbox", obs.BBox)
			continue
		}
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

		obs.Embedding = embedding
		result = append(result, obs)
	}

	return result, nil
}

// EmbedImage extracts a single embedding from a standalone image, used at
// enrollment time. When several faces are present the highest-confidence
// one wins. Returns the embedding, the detection confidence, and the JPEG
// crop that produced it.
func (x *Extractor) EmbedImage(imageData []byte) ([]float32, float32, []byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(imageData))
	if err != nil {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, 0, nil, fmt.Errorf("decode image: %w", err)
		}
	}

	bounds := img.Bounds()
	detInput := preprocessForDetection(img, x.detector.inputW, x.detector.inputH)
	observations, err := x.detector.Detect(detInput, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, 0, nil, fmt.Errorf("detect: %w", err)
	}
	if len(observations) == 0 {
		return nil, 0, nil, ErrNoFace
	}

	best := observations[0]
	for _, o := range observations[1:] {
		if o.Confidence > best.Confidence {
			best = o
		}
	}

	crop := CropFace(img, best.BBox)
	if crop == nil {
		return nil, 0, nil, fmt.Errorf("crop face: empty region")
	}

	embInput := preprocessForEmbedding(crop, x.embedder.inputW, x.embedder.inputH)
	embedding, err := x.embedder.Embed(embInput)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("embed: %w", err)
	}

	return embedding, best.Confidence, EncodeJPEG(crop, 85), nil
}

// Close releases both ONNX sessions.
func (x *Extractor) Close() {
	if x.detector != nil {
		x.detector.Close()
	}
	if x.embedder != nil {
		x.embedder.Close()
	}
}
