package logging

import "go.uber.org/zap/zapcore"

// NewTeeCore sends entries to the console and, when file is non-nil, to a
// JSON log file. In dev mode the console is colored text; otherwise it is
// JSON as well.
func NewTeeCore(level zapcore.LevelEnabler, console, file zapcore.WriteSyncer, isDev bool) zapcore.Core {
	consoleEncoder := zapcore.NewJSONEncoder(NewEncoderConfig())
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, console, level)
	if file == nil {
		return consoleCore
	}

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), file, level)
	return zapcore.NewTee(consoleCore, fileCore)
}
