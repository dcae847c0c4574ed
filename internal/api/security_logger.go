package api

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/MJE43/digiwin/internal/engine"
)

// SecurityLogger handles security-conscious logging with no raw seed exposure
type SecurityLogger struct {
	logger *log.Logger
}

// NewSecurityLogger creates a new security logger writing to out
func NewSecurityLogger(out io.Writer) *SecurityLogger {
	return &SecurityLogger{
		logger: log.New(out, "[SECURITY] ", log.LstdFlags|log.LUTC),
	}
}

// LogCallOperation logs a public contract call and its outcome
func (sl *SecurityLogger) LogCallOperation(
	requestID string,
	contract string,
	function string,
	sender string,
	args []string,
	txID string,
	result string,
	committed bool,
) {
	sl.logger.Printf(
		"call_operation request_id=%s contract=%s function=%s sender=%s args=%v tx_id=%s result=%s committed=%t engine_version=%s timestamp=%s",
		requestID,
		contract,
		function,
		sender,
		args,
		txID,
		result,
		committed,
		EngineVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSecurityEvent logs security-related events (failed validations, suspicious activity)
func (sl *SecurityLogger) LogSecurityEvent(
	requestID string,
	eventType string,
	description string,
	context map[string]interface{},
	remoteAddr string,
) {
	sl.logger.Printf(
		"security_event request_id=%s type=%s description=%q context=%+v remote_addr=%s engine_version=%s timestamp=%s",
		requestID,
		eventType,
		description,
		sl.sanitizeContext(context),
		remoteAddr,
		EngineVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogAuditEvent logs audit events for compliance and debugging
func (sl *SecurityLogger) LogAuditEvent(
	requestID string,
	action string,
	resource string,
	outcome string,
	details map[string]interface{},
) {
	sl.logger.Printf(
		"audit_event request_id=%s action=%s resource=%s outcome=%s details=%+v engine_version=%s timestamp=%s",
		requestID,
		action,
		resource,
		outcome,
		sl.sanitizeContext(details),
		EngineVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSystemStartup logs system startup information
func (sl *SecurityLogger) LogSystemStartup(addr string, config map[string]interface{}) {
	sl.logger.Printf(
		"system_startup addr=%s config=%+v engine_version=%s git_commit=%s build_time=%s timestamp=%s",
		addr,
		sl.sanitizeContext(config),
		EngineVersion,
		GitCommit,
		BuildTime,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSystemShutdown logs system shutdown information
func (sl *SecurityLogger) LogSystemShutdown(reason string, uptime time.Duration) {
	sl.logger.Printf(
		"system_shutdown reason=%s uptime=%v engine_version=%s timestamp=%s",
		reason,
		uptime,
		EngineVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// hashSeed returns the first 16 hex chars of the seed's SHA-256
func (sl *SecurityLogger) hashSeed(seed string) string {
	if seed == "" {
		return "empty"
	}
	return engine.HashSeed(seed)[:16]
}

// sanitizeContext removes sensitive data from context maps
func (sl *SecurityLogger) sanitizeContext(context map[string]interface{}) map[string]interface{} {
	if context == nil {
		return nil
	}

	sanitized := make(map[string]interface{}, len(context))
	for key, value := range context {
		switch key {
		case "server_seed", "serverSeed", "seed", "block_seed":
			if strVal, ok := value.(string); ok {
				sanitized[key+"_hash"] = sl.hashSeed(strVal)
			} else {
				sanitized[key+"_hash"] = fmt.Sprintf("non_string_value_%T", value)
			}
		case "secret", "password", "token", "api_key", "authorization", "private_key":
			sanitized[key] = "[REDACTED]"
		default:
			sanitized[key] = value
		}
	}

	return sanitized
}
