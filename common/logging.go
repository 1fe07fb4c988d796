package common

import "go.uber.org/zap"

// Logger is the process-wide structured logger. Components that warrant
// log output call it directly; it is a no-op logger until InitLogger
// replaces it.
var Logger *zap.Logger = zap.NewNop()

func InitLogger(development bool) error {
	var l *zap.Logger
	var err error
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	Logger = l
	return nil
}

func NewNopLogger() *zap.Logger { return zap.NewNop() }
