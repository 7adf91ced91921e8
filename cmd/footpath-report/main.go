// Command footpath-report renders the latest persisted analytics of a camera
// as an HTML page, a PNG heatmap or JSON.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/footpath.report/internal/config"
	"github.com/banshee-data/footpath.report/internal/db"
	"github.com/banshee-data/footpath.report/internal/footpath/report"
)

var (
	configPath = flag.String("config", config.ExampleConfigPath, "Path to the footpath configuration file")
	dbPathFlag = flag.String("db-path", "", "Override database_path from the configuration")
	cameraID   = flag.String("camera", "", "Camera to report on (defaults to the first configured camera)")
	outHTML    = flag.String("out-html", "", "Write an HTML report to this path")
	outPNG     = flag.String("out-png", "", "Write a PNG heatmap to this path")
	outJSON    = flag.String("out-json", "", "Write the report with a sparse heatmap as JSON to this path")
	jsonMin    = flag.Float64("json-min", 0.05, "Drop heatmap cells below this normalized value from the JSON output")
	patterns   = flag.Int("patterns", 50, "Maximum number of recent patterns to include")
	widthIn    = flag.Float64("png-width", 8, "PNG width in inches")
	heightIn   = flag.Float64("png-height", 6, "PNG height in inches")
)

func main() {
	flag.Parse()

	if *outHTML == "" && *outPNG == "" && *outJSON == "" {
		fmt.Fprintln(os.Stderr, "Usage: footpath-report -camera <id> [-out-html report.html] [-out-png heatmap.png] [-out-json report.json]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.LoadFootpathConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPathFlag != "" {
		cfg.DatabasePath = dbPathFlag
	}
	id, err := resolveCamera(cfg, *cameraID)
	if err != nil {
		log.Fatal(err)
	}

	database, err := db.NewDB(cfg.GetDatabasePath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	rep, err := report.Load(database, id, *patterns)
	if err != nil {
		log.Fatalf("Failed to load report: %v", err)
	}
	outs := outputs{
		html:    *outHTML,
		png:     *outPNG,
		json:    *outJSON,
		width:   vg.Length(*widthIn) * vg.Inch,
		height:  vg.Length(*heightIn) * vg.Inch,
		jsonMin: *jsonMin,
	}
	if err := writeOutputs(rep, outs); err != nil {
		log.Fatal(err)
	}
}

// resolveCamera returns id, or the first configured camera when id is empty.
func resolveCamera(cfg *config.FootpathConfig, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if len(cfg.Cameras) == 0 {
		return "", fmt.Errorf("no -camera given and no cameras configured")
	}
	return cfg.Cameras[0].CameraID, nil
}

// outputs names the files to write; empty paths are skipped.
type outputs struct {
	html, png, json string
	width, height   vg.Length
	jsonMin         float64
}

func writeOutputs(rep report.Report, o outputs) error {
	if o.html != "" {
		if err := writeFile(o.html, func(f *os.File) error { return report.WriteHTML(f, rep) }); err != nil {
			return err
		}
		log.Printf("wrote %s", o.html)
	}
	if o.png != "" {
		if err := writeFile(o.png, func(f *os.File) error { return report.WritePNG(f, rep, o.width, o.height) }); err != nil {
			return err
		}
		log.Printf("wrote %s", o.png)
	}
	if o.json != "" {
		if err := writeFile(o.json, func(f *os.File) error { return report.WriteJSON(f, rep, o.jsonMin) }); err != nil {
			return err
		}
		log.Printf("wrote %s", o.json)
	}
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
