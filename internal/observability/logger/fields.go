package logger

import (
	"go.uber.org/zap"
)

// ---- HTTP ----

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

// ---- Popup / handshake ----

// Shop crea un campo para el identificador de tienda.
func Shop(v string) zap.Field { return zap.String("shop", v) }

// ResultStatus crea un campo para el status decodificado del redirect.
func ResultStatus(v string) zap.Field { return zap.String("result_status", v) }

// ErrorCode crea un campo para el código de error del redirect.
func ErrorCode(v string) zap.Field { return zap.String("error_code", v) }

// TargetOrigin crea un campo para el origin al que se restringe el postMessage.
func TargetOrigin(v string) zap.Field { return zap.String("target_origin", v) }

// Event crea un campo para un evento del handshake.
func Event(v string) zap.Field { return zap.String("event", v) }

// ---- Sistema ----

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

func String(key, v string) zap.Field    { return zap.String(key, v) }
func Int(key string, v int) zap.Field   { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field   { return zap.Any(key, v) }
