package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RunSummary — статистика run.
type RunSummary struct {
	Total         int     `json:"total"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	Queued        int     `json:"queued"`
	Running       int     `json:"running"`
	SuccessRate   float64 `json:"success_rate"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
}

// RunResponse — run кампании из API.
type RunResponse struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id"`
	Status     string     `json:"status"`
	StartedAt  string     `json:"started_at"`
	EndedAt    string     `json:"ended_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Summary    RunSummary `json:"summary"`
}

// CommandResponse — результат команды жизненного цикла.
type CommandResponse struct {
	CampaignID string       `json:"campaign_id"`
	Status     string       `json:"status"`
	Run        *RunResponse `json:"run,omitempty"`
}

// JobResponse — запись job из API.
type JobResponse struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Type       string          `json:"type"`
	CampaignID string          `json:"campaign_id"`
	RunID      string          `json:"run_id"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	Progress   int             `json:"progress"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	UpdatedAt  string          `json:"updated_at"`
}

// DeadLetterResponse — запись DLQ из API.
type DeadLetterResponse struct {
	MessageID   string          `json:"message_id"`
	JobID       string          `json:"job_id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	CampaignID  string          `json:"campaign_id"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Reason      string          `json:"reason"`
	Error       string          `json:"error"`
	Payload     json.RawMessage `json:"payload"`
	FailedAt    string          `json:"failed_at"`
}

// ReplayResponse — результат replay.
type ReplayResponse struct {
	Replayed []string `json:"replayed"`
	Failed   []string `json:"failed,omitempty"`
}

// JobAcceptedResponse — job поставлен в очередь.
type JobAcceptedResponse struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}

// Event — событие кампании (плоский JSON).
type Event map[string]any

// --- Request types ---

// DistributeRequest — распределение SOL.
type DistributeRequest struct {
	Count      int    `json:"count"`
	CampaignID string `json:"campaign_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Swarm API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Campaigns ---

// StartCampaign запускает кампанию.
func (c *Client) StartCampaign(id string) (*CommandResponse, error) {
	return c.command(id, "start")
}

// PauseCampaign приостанавливает кампанию.
func (c *Client) PauseCampaign(id string) (*CommandResponse, error) {
	return c.command(id, "pause")
}

// ResumeCampaign возобновляет кампанию.
func (c *Client) ResumeCampaign(id string) (*CommandResponse, error) {
	return c.command(id, "resume")
}

// StopCampaign останавливает кампанию.
func (c *Client) StopCampaign(id string) (*CommandResponse, error) {
	return c.command(id, "stop")
}

func (c *Client) command(id, action string) (*CommandResponse, error) {
	var resp CommandResponse
	err := c.post("/api/v1/campaigns/"+id+"/"+action, nil, &resp)
	return &resp, err
}

// ListCampaignRuns возвращает runs кампании.
func (c *Client) ListCampaignRuns(id string, limit int) ([]RunResponse, error) {
	var runs []RunResponse
	err := c.list("/api/v1/campaigns/"+id+"/runs", limitParams(limit), &runs)
	return runs, err
}

// ListCampaignEvents возвращает недавние события кампании.
func (c *Client) ListCampaignEvents(id string, since time.Time, limit int) ([]Event, error) {
	params := limitParams(limit)
	if !since.IsZero() {
		params.Set("since", since.UTC().Format(time.RFC3339Nano))
	}

	var events []Event
	err := c.list("/api/v1/campaigns/"+id+"/events", params, &events)
	return events, err
}

// --- Runs & jobs ---

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// GetJob возвращает запись job по ID.
func (c *Client) GetJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/v1/jobs/"+url.PathEscape(id), &job)
	return &job, err
}

// --- Wallets ---

// Distribute ставит распределение SOL с кошелька.
func (c *Client) Distribute(walletID string, req DistributeRequest) (*JobAcceptedResponse, error) {
	var resp JobAcceptedResponse
	err := c.post("/api/v1/wallets/"+walletID+"/distribute", req, &resp)
	return &resp, err
}

// --- Dead letters ---

// ListDeadLetters возвращает dead letters очереди без удаления.
func (c *Client) ListDeadLetters(queue string, limit int) ([]DeadLetterResponse, error) {
	var letters []DeadLetterResponse
	err := c.list("/api/v1/dlq/"+queue, limitParams(limit), &letters)
	return letters, err
}

// ReplayDeadLetters ставит dead letters обратно в очередь.
func (c *Client) ReplayDeadLetters(queue string, limit int) (*ReplayResponse, error) {
	var resp ReplayResponse
	err := c.post("/api/v1/dlq/"+queue+"/replay", map[string]int{"limit": limit}, &resp)
	return &resp, err
}

// --- HTTP helpers ---

func limitParams(limit int) url.Values {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return params
}

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
