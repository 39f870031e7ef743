package logging

import (
	"time"

	"go.uber.org/zap"
)

// Err attaches an error under the "error" key.
func Err(err error) zap.Field { return zap.Error(err) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Int(key string, v int) zap.Field { return zap.Int(key, v) }

func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

func Duration(key string, v time.Duration) zap.Field { return zap.Duration(key, v) }

// UserID tags the entry with the affected user.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// Email tags the entry with an email address.
func Email(v string) zap.Field { return zap.String("email", v) }

// Provider tags the entry with an auth provider name.
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Method, Path, Status and ClientIP describe an HTTP request.
func Method(v string) zap.Field   { return zap.String("method", v) }
func Path(v string) zap.Field     { return zap.String("path", v) }
func Status(v int) zap.Field      { return zap.Int("status", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }
