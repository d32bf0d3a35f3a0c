// Command scened serves maritime scene understanding over HTTP: POST a frame,
// get back detected objects and the horizon estimate.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/harborwatch/maritime-scene-service/classmap"
	"github.com/harborwatch/maritime-scene-service/engine"
	"github.com/harborwatch/maritime-scene-service/pipeline"
	"github.com/harborwatch/maritime-scene-service/postprocess"
	"github.com/harborwatch/maritime-scene-service/present"
	"github.com/harborwatch/maritime-scene-service/timing"
)

var debugMode bool

func init() {
	debugMode = os.Getenv("DEBUG") == "true"
}

type appState struct {
	pool    *engine.Pool
	classes map[int]string
	cfg     pipeline.Config
}

type sceneResponse struct {
	RequestID  string          `json:"request_id"`
	Detections json.RawMessage `json:"detections"`
	Horizon    *horizonJSON    `json:"horizon,omitempty"`
}

type horizonJSON struct {
	Pitch float64 `json:"pitch"`
	Theta float64 `json:"theta"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var (
		addr      = flag.String("addr", "127.0.0.1:8080", "listen address")
		modelPath = flag.String("model", "models/seascape_640.onnx", "path to the ONNX model")
		poolSize  = flag.Int("pool", engine.DefaultPoolSize, "engine pool size")
		imgsz     = flag.Int("imgsz", 640, "network input size")
		classes   = flag.Int("classes", 5, "number of detection classes")
		bins      = flag.Int("bins", 500, "pitch/theta bins per head")
		conf      = flag.Float64("conf", float64(postprocess.DefaultConfThreshold), "confidence threshold")
		iou       = flag.Float64("iou", float64(postprocess.DefaultIoUThreshold), "IoU suppression threshold")
		agnostic  = flag.Bool("agnostic", false, "class-agnostic suppression")
	)
	flag.Parse()

	if lib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("Failed to initialize ONNX environment: %v", err)
	}
	defer ort.DestroyEnvironment()

	sessionCfg := sessionConfigFor(*modelPath, *imgsz, *classes, *bins)
	pool, err := engine.NewPool(func() (engine.Engine, error) {
		return engine.NewSession(*modelPath, sessionCfg)
	}, *poolSize)
	if err != nil {
		log.Fatalf("Failed to create engine pool: %v", err)
	}
	defer pool.Destroy()

	clsMap, err := classmap.ForModel(*modelPath)
	if err != nil {
		log.Fatalf("Failed to load class map: %v", err)
	}
	if clsMap == nil {
		log.Printf("No class map sidecar for %s; named output format disabled", *modelPath)
	}

	state := &appState{
		pool:    pool,
		classes: clsMap,
		cfg: pipeline.Config{
			Detection: postprocess.Config{
				ConfThreshold: float32(*conf),
				IoUThreshold:  float32(*iou),
				Agnostic:      *agnostic,
			},
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/analyze-scene", handleAnalyzeScene(state)).Methods("POST")
	r.HandleFunc("/metrics", state.handleMetrics).Methods("GET")

	srv := &http.Server{
		Handler:      r,
		Addr:         *addr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	log.Printf("Starting server on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

// sessionConfigFor wires the model's bound outputs from its input size and
// head widths. Which heads the artifact carries is inferred from a substring
// in its filename: "horizon" models expose only the pitch/theta heads,
// "detect" models only the detection output, anything else all three.
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

// anchorCount is the per-image anchor total for the three detection scales
// at strides 8, 16 and 32, three anchors each.
func anchorCount(imgsz int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := imgsz / stride
		n += side * side * 3
	}
	return n
}

func handleAnalyzeScene(state *appState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()

		imgBytes, err := readImageBytes(r)
		if err != nil {
			sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}
		img, _, err := image.Decode(bytes.NewReader(imgBytes))
		if err != nil {
			sendErrorResponse(w, "invalid_image", "Failed to decode image", http.StatusBadRequest)
			return
		}

		eng, err := state.pool.Acquire(r.Context())
		if err != nil {
			sendErrorResponse(w, "engine_error", err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer state.pool.Release(eng)

		p := pipeline.New(eng, state.cfg)
		res, err := p.Process([]image.Image{img})
		if err != nil {
			sendErrorResponse(w, "processing_error", err.Error(), http.StatusInternalServerError)
			return
		}
		logTimings(requestID, p.Stages())

		origW, origH := img.Bounds().Dx(), img.Bounds().Dy()
		dets, err := formatDetections(r.URL.Query().Get("format"), res, origH, origW, state.classes)
		if err != nil {
			sendErrorResponse(w, "format_error", err.Error(), http.StatusBadRequest)
			return
		}

		resp := sceneResponse{RequestID: requestID, Detections: dets}
		if len(res.Horizons) > 0 {
			resp.Horizon = &horizonJSON{Pitch: res.Horizons[0].Pitch, Theta: res.Horizons[0].Theta}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// formatDetections renders the first frame's detections in the requested
// presentation format; "named" needs the class map and fails without it.
func formatDetections(format string, res *pipeline.Result, origH, origW int, classes map[int]string) (json.RawMessage, error) {
	var dets []postprocess.Detection
	if len(res.Detections) > 0 {
		dets = res.Detections[0]
	}
	switch format {
	case "", "named":
		named, err := present.ToNamed(dets, origH, origW, classes)
		if err != nil {
			return nil, err
		}
		return json.Marshal(named)
	case "tf":
		return json.Marshal(present.ToTF(dets, origH, origW))
	case "raw":
		boxes, scores, cls := present.Raw(dets)
		return json.Marshal(map[string]any{"boxes": boxes, "scores": scores, "classes": cls})
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

func (s *appState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.pool.Metrics()
	response := map[string]any{
		"pool_size":          s.pool.Size(),
		"engines_in_use":     m.InUse,
		"total_acquired":     m.TotalAcquired,
		"total_released":     m.TotalReleased,
		"acquire_failures":   m.AcquireFailures,
		"replenish_failures": m.ReplenishFailures,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func readImageBytes(r *http.Request) ([]byte, error) {
	switch {
	case r.Header.Get("Content-Type") == "application/json":
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(req.Image)
	case strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"):
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(file)
	default:
		return io.ReadAll(r.Body)
	}
}

func logTimings(requestID string, stages *timing.Stages) {
	if debugMode {
		log.Printf("[DEBUG] RequestID: %s - stage times:\n%s", requestID, stages.Report())
	}
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}
