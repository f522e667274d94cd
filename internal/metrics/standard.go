package metrics

// Metric names recorded by the harness.
const (
	LoginSuccessRate        = "login_success_rate"
	LoginDuration           = "login_duration"
	LoginFailures           = "login_failures"
	TokenReuse              = "jwt_token_reuse"
	ExpedientsFetched       = "expedients_fetched"
	ExpedientsFetchDuration = "expedients_fetch_duration"
	SignaturesPendingCount  = "signatures_pending_count"
	SignaturesFetchDuration = "signatures_fetch_duration"
	NotificationsFetched    = "notifications_fetched"
	NotificationsDuration   = "notifications_duration"
	CourtExpedientsDuration = "court_expedients_duration"
	HTTPErrors4xx           = "http_errors_4xx"
	HTTPErrors5xx           = "http_errors_5xx"
	RequestTimeouts         = "request_timeouts"
	CheckFailures           = "check_failures"
	APIResponseTime         = "api_response_time"
	DataReceived            = "data_received_bytes"
	HTTPReqDuration         = "http_req_duration"
	HTTPReqWaiting          = "http_req_waiting"
	HTTPReqFailed           = "http_req_failed"
	Checks                  = "checks"
	Iterations              = "iterations"
	IterationDuration       = "iteration_duration"
	FailedIterations        = "failed_iterations"
	VUs                     = "vus"
)

var endpointLabel = []string{"endpoint"}

// Standard is the catalog defined by NewRegistry.
var Standard = []Definition{
	{Name: LoginSuccessRate, Kind: Rate, Help: "Share of successful logins"},
	{Name: LoginDuration, Kind: Trend, Help: "Login request time in ms"},
	{Name: LoginFailures, Kind: Counter, Help: "Failed logins", Labels: []string{"reason"}},
	{Name: TokenReuse, Kind: Counter, Help: "Iterations served by a cached session"},
	{Name: ExpedientsFetched, Kind: Counter, Help: "Expedients returned by the user listing"},
	{Name: ExpedientsFetchDuration, Kind: Trend, Help: "Expedients by user request time in ms"},
	{Name: SignaturesPendingCount, Kind: Gauge, Help: "Pending signature documents in the last response"},
	{Name: SignaturesFetchDuration, Kind: Trend, Help: "Pending signatures request time in ms"},
	{Name: NotificationsFetched, Kind: Counter, Help: "Push notifications returned"},
	{Name: NotificationsDuration, Kind: Trend, Help: "Push notifications request time in ms"},
	{Name: CourtExpedientsDuration, Kind: Trend, Help: "Expedients by court request time in ms"},
	{Name: HTTPErrors4xx, Kind: Counter, Help: "Responses with a 4xx status", Labels: endpointLabel},
	{Name: HTTPErrors5xx, Kind: Counter, Help: "Responses with a 5xx status", Labels: endpointLabel},
	{Name: RequestTimeouts, Kind: Counter, Help: "Requests that timed out", Labels: endpointLabel},
	{Name: CheckFailures, Kind: Counter, Help: "Failed checks", Labels: endpointLabel},
	{Name: APIResponseTime, Kind: Trend, Help: "Business API request time in ms", Labels: endpointLabel},
	{Name: DataReceived, Kind: Counter, Help: "Response body bytes received"},
	{Name: HTTPReqDuration, Kind: Trend, Help: "Request time in ms", Labels: endpointLabel},
	{Name: HTTPReqWaiting, Kind: Trend, Help: "Time to first byte in ms", Labels: endpointLabel},
	{Name: HTTPReqFailed, Kind: Rate, Help: "Share of requests with a non-2xx status or no response", Labels: endpointLabel},
	{Name: Checks, Kind: Rate, Help: "Share of passed checks", Labels: endpointLabel},
	{Name: Iterations, Kind: Counter, Help: "Completed iterations"},
	{Name: IterationDuration, Kind: Trend, Help: "Iteration time in ms"},
	{Name: FailedIterations, Kind: Counter, Help: "Iterations that panicked"},
	{Name: VUs, Kind: Gauge, Help: "Active virtual users"},
}
