// classify scores leaf images from the command line, either by loading a
// model artifact locally or by calling a running server with -server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"maize-backend/internal/core"
	"maize-backend/internal/core/utils"
	"maize-backend/pkg/client"

	"github.com/schollz/progressbar/v3"
	ort "github.com/yalue/onnxruntime_go"
)

const defaultMaxUploadBytes = 10 << 20

var imageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
}

type options struct {
	modelDir string
	server   string
	dylib    string
	timeout  time.Duration
	top      int
	workers  int
}

type result struct {
	path       string
	label      string
	confidence float64
	top        []core.Ranked
}

func main() {
	var opts options
	flag.StringVar(&opts.modelDir, "model", "./models/maize", "local model artifact directory")
	flag.StringVar(&opts.server, "server", "", "classify through a running server (e.g. http://localhost:8000) instead of loading the model locally")
	flag.StringVar(&opts.dylib, "dylib", "", "path to the onnxruntime shared library")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-image timeout")
	flag.IntVar(&opts.top, "top", 0, "also print the top N classes per image")
	flag.IntVar(&opts.workers, "workers", 4, "images decoded concurrently")
	flag.Parse()

	paths, err := collectImages(flag.Args())
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(paths) == 0 {
		log.Fatalf("usage: classify [flags] image-or-directory ...")
	}

	os.Exit(run(opts, paths))
}

func run(opts options, paths []string) int {
	var classify func(string) (*result, error)
	if opts.server != "" {
		classify = remoteClassifier(opts)
	} else {
		local, cleanup := localClassifier(opts)
		defer cleanup()
		classify = local
	}

	queue := make(chan string, len(paths))
	for _, p := range paths {
		queue <- p
	}
	close(queue)

	completed := make(chan utils.CompletedTask[*result], len(paths))
	utils.RunInPool(classify, queue, completed, opts.workers)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("⏳ classifying"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	var results []*result
	failures := 0
	for done := range completed {
		_ = bar.Add(1)
		if done.Error != nil {
			log.Printf("%v", done.Error)
			failures++
			continue
		}
		results = append(results, done.Result)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })
	for _, res := range results {
		fmt.Printf("%s\t%s\t%.4f\n", res.path, res.label, res.confidence)
		for _, t := range res.top {
			fmt.Printf("\t%-55s %.4f\n", t.Label, t.Probability)
		}
	}

	if failures > 0 {
		return 1
	}
	return 0
}

func localClassifier(opts options) (func(string) (*result, error), func()) {
	if opts.dylib != "" {
		ort.SetSharedLibraryPath(opts.dylib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}

	handle, err := core.LoadHandle(opts.modelDir)
	if err != nil {
		log.Fatalf("could not load model from %s: %v", opts.modelDir, err)
	}

	service := core.NewPredictionService(handle, defaultMaxUploadBytes, opts.timeout)

	classify := func(path string) (*result, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		insp, err := service.Inspect(context.Background(), core.Upload{
			Filename:    filepath.Base(path),
			ContentType: http.DetectContentType(data),
			Size:        int64(len(data)),
			Data:        data,
		})
		if err != nil {
			return nil, fmt.Errorf("classifying %s: %w", path, err)
		}

		res := &result{path: path, label: insp.Prediction.Label, confidence: insp.Prediction.Confidence}
		if opts.top > 0 {
			res.top = core.TopRanked(handle.Meta().Classes, insp.RawOutput, opts.top)
		}
		return res, nil
	}

	cleanup := func() {
		handle.Close()
		if err := ort.DestroyEnvironment(); err != nil {
			log.Printf("error destroying onnx env: %v", err)
		}
	}
	return classify, cleanup
}

func remoteClassifier(opts options) func(string) (*result, error) {
	c := client.New(opts.server)

	return func(path string) (*result, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()

		resp, err := c.Predict(ctx, filepath.Base(path), data)
		if err != nil {
			return nil, fmt.Errorf("classifying %s: %w", path, err)
		}

		res := &result{path: path, label: resp.Prediction, confidence: resp.Confidence}
		if opts.top > 0 {
			res.top = topFromMap(resp.AllProbabilities, opts.top)
		}
		return res, nil
	}
}

// topFromMap ranks the rounded probabilities a server response carries; ties
// fall back to label order so output stays stable.
func topFromMap(probs map[string]float64, n int) []core.Ranked {
	ranked := make([]core.Ranked, 0, len(probs))
	for label, p := range probs {
		ranked = append(ranked, core.Ranked{Label: label, Probability: p})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Probability != ranked[j].Probability {
			return ranked[i].Probability > ranked[j].Probability
		}
		return ranked[i].Label < ranked[j].Label
	})
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

func collectImages(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("reading directory %s: %w", arg, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if _, ok := imageExts[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
				paths = append(paths, filepath.Join(arg, entry.Name()))
			}
		}
	}
	return paths, nil
}
