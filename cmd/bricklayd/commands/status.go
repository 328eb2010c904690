package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bricklayers/bricklayd/internal/cli/output"
)

var (
	statusOutput string
	statusPort   int
	statusHost   string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show server or job status",
	Long: `Display the current status of the bricklayd server, or of a single
job when a job ID is given.

Examples:
  # Check server health
  bricklayd status

  # Check a job
  bricklayd status 6f1c2a9e-...

  # Check status with custom port
  bricklayd status --port 9000

  # Output as JSON
  bricklayd status --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusHost, "host", "localhost", "Server host")
	statusCmd.Flags().IntVar(&statusPort, "port", 8000, "Server port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// serverStatus is the CLI view of the server health probe.
type serverStatus struct {
	Running bool   `json:"running" yaml:"running"`
	Healthy bool   `json:"healthy" yaml:"healthy"`
	Message string `json:"message" yaml:"message"`
}

// jobStatus mirrors the API status response for CLI output.
type jobStatus struct {
	JobID     string `json:"job_id" yaml:"job_id"`
	Filename  string `json:"filename" yaml:"filename"`
	Status    string `json:"status" yaml:"status"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
	UpdatedAt string `json:"updated_at" yaml:"updated_at"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 2 * time.Second}
	baseURL := fmt.Sprintf("http://%s:%d", statusHost, statusPort)

	if len(args) == 1 {
		return printJobStatus(client, baseURL, args[0], format)
	}
	return printServerStatus(client, baseURL, format)
}

func printServerStatus(client *http.Client, baseURL string, format output.Format) error {
	status := serverStatus{Message: "Server is not running"}

	resp, err := client.Get(baseURL + "/health")
	if err == nil {
		defer func() { _ = resp.Body.Close() }()

		var health struct {
			Status string `json:"status"`
		}
		if derr := json.NewDecoder(resp.Body).Decode(&health); derr == nil {
			status.Running = true
			status.Healthy = health.Status == "healthy"
			if status.Healthy {
				status.Message = "Server is running and healthy"
			} else {
				status.Message = fmt.Sprintf("Server is running but reports %q", health.Status)
			}
		} else {
			status.Running = true
			status.Message = "Server is running but health response invalid"
		}
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		state := "\033[31m○ Stopped\033[0m"
		if status.Running && status.Healthy {
			state = "\033[32m● Running\033[0m"
		} else if status.Running {
			state = "\033[33m● Running (unhealthy)\033[0m"
		}
		return output.SimpleTable(os.Stdout, [][2]string{
			{"Status", state},
			{"Message", status.Message},
		})
	}
}

func printJobStatus(client *http.Client, baseURL, jobID string, format output.Format) error {
	resp, err := client.Get(baseURL + "/api/v1/status/" + jobID)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job %s not found", jobID)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from server", resp.StatusCode)
	}

	var js jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&js); err != nil {
		return fmt.Errorf("invalid status response: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, js)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, js)
	default:
		pairs := [][2]string{
			{"Job ID", js.JobID},
			{"Filename", js.Filename},
			{"Status", js.Status},
			{"Created", js.CreatedAt},
			{"Updated", js.UpdatedAt},
		}
		if js.Error != "" {
			pairs = append(pairs, [2]string{"Error", js.Error})
		}
		return output.SimpleTable(os.Stdout, pairs)
	}
}
