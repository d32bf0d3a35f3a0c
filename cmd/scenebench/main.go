// Command scenebench measures per-stage inference latency: N warm-up calls,
// then N timed calls through the full pipeline, reporting mean latency per
// stage. Which model variant to load is inferred from a substring in the
// model path, a convention rather than strict validation: "dual" loads a day/night
// ensemble, "horizon" a head-only model, "detect" a detection-only one.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/harborwatch/maritime-scene-service/engine"
	"github.com/harborwatch/maritime-scene-service/pipeline"
	"github.com/harborwatch/maritime-scene-service/postprocess"
	"github.com/harborwatch/maritime-scene-service/preprocess"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var (
		modelPath = flag.String("model", "", "path to the ONNX model (required)")
		runs      = flag.Int("n", 100, "timed calls")
		warmup    = flag.Int("warmup", 10, "warm-up calls")
		imgsz     = flag.Int("imgsz", 640, "network input size")
		classes   = flag.Int("classes", 5, "number of detection classes")
		bins      = flag.Int("bins", 500, "pitch/theta bins per head")
		conf      = flag.Float64("conf", float64(postprocess.DefaultConfThreshold), "confidence threshold")
		iou       = flag.Float64("iou", float64(postprocess.DefaultIoUThreshold), "IoU suppression threshold")
		dryRun    = flag.Bool("dry-run", false, "warm up only, skip the timed runs")
	)
	flag.Parse()
	if *modelPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if lib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("Failed to initialize ONNX environment: %v", err)
	}
	defer ort.DestroyEnvironment()

	cfg := sessionConfigFor(*modelPath, *imgsz, *classes, *bins)
	eng, err := engine.NewSession(*modelPath, cfg)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	defer eng.Close()

	pcfg := pipeline.Config{
		Detection: postprocess.Config{
			ConfThreshold: float32(*conf),
			IoUThreshold:  float32(*iou),
		},
	}

	members := []benchMember{{name: "model", p: pipeline.New(eng, pcfg)}}
	var ens *engine.Ensemble
	if strings.Contains(*modelPath, "dual") {
		// Day/night variants share the artifact here; the ensemble check
		// still guards precision agreement.
		night, err := engine.NewSession(*modelPath, cfg)
		if err != nil {
			log.Fatalf("Failed to load night member: %v", err)
		}
		defer night.Close()
		ens, members, err = dualMembers(eng, night, pcfg)
		if err != nil {
			log.Fatalf("Failed to ensemble models: %v", err)
		}
	}

	frames := syntheticFrames(eng.BatchSize(), *imgsz)

	fmt.Println("warming up...")
	batch, err := preprocess.BatchTensor(frames, eng.InputWidth(), eng.InputHeight())
	if err != nil {
		log.Fatalf("Failed to prepare warm-up batch: %v", err)
	}
	for i := 0; i < *warmup; i++ {
		if ens != nil {
			if _, _, err := ens.Forward(batch, batch); err != nil {
				log.Fatalf("Warm-up call failed: %v", err)
			}
			continue
		}
		if _, err := eng.Forward(batch); err != nil {
			log.Fatalf("Warm-up call failed: %v", err)
		}
	}

	if *dryRun {
		return
	}

	fmt.Println("benchmarking...")
	for i := 0; i < *runs; i++ {
		for _, m := range members {
			if _, err := m.p.Process(frames); err != nil {
				log.Fatalf("Timed call %d (%s) failed: %v", i, m.name, err)
			}
		}
	}
	for _, m := range members {
		fmt.Printf("%s:\n%s\n", m.name, m.p.Stages().Report())
	}
}

// benchMember is one timed pipeline: the single model, or one side of a
// day/night ensemble.
type benchMember struct {
	name string
	p    *pipeline.Pipeline
}

// dualMembers joins the day and night engines behind the ensemble precision
// check and wraps each member in its own pipeline, so the timed runs cover
// both sides.
func dualMembers(day, night engine.Engine, cfg pipeline.Config) (*engine.Ensemble, []benchMember, error) {
	ens, err := engine.NewEnsemble(day, night)
	if err != nil {
		return nil, nil, err
	}
	return ens, []benchMember{
		{name: "day", p: pipeline.New(ens.Day, cfg)},
		{name: "night", p: pipeline.New(ens.Night, cfg)},
	}, nil
}

// sessionConfigFor mirrors the serving side: head layout from a filename
// substring, anchor count from the input size.
func sessionConfigFor(modelPath string, imgsz, classes, bins int) engine.SessionConfig {
	anchors := int64(anchorCount(imgsz))
	det := []int64{1, anchors, int64(4 + classes)}
	head := []int64{1, int64(bins)}

	cfg := engine.SessionConfig{
		InputHeight: imgsz,
		InputWidth:  imgsz,
		BatchSize:   1,
		InputName:   "images",
	}
	switch {
	case strings.Contains(modelPath, "horizon"):
		cfg.OutputNames = []string{"pitch", "theta"}
		cfg.OutputShapes = [][]int64{head, head}
	case strings.Contains(modelPath, "detect"):
		cfg.OutputNames = []string{"output0"}
		cfg.OutputShapes = [][]int64{det}
	default:
		cfg.OutputNames = []string{"output0", "pitch", "theta"}
		cfg.OutputShapes = [][]int64{det, head, head}
	}
	return cfg
}

func anchorCount(imgsz int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := imgsz / stride
		n += side * side * 3
	}
	return n
}

func syntheticFrames(batch, imgsz int) []image.Image {
	frames := make([]image.Image, batch)
	for i := range frames {
		frames[i] = image.NewNRGBA(image.Rect(0, 0, imgsz, imgsz))
	}
	return frames
}
