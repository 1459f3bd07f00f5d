package logger

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	logrus "github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

// Options controls where and how much the process logs.
type Options struct {
	File  string
	Level string
}

// Setup initializes Logrus with a rotating file and stdout.
func Setup(opts Options) {
	writers := []io.Writer{os.Stdout}

	// 1) Lumberjack for file rotation
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 7,  // keep up to 7 old files
			MaxAge:     7,  // days
			Compress:   true,
		})
	}

	// 2) Configure Logrus to write to both
	logrus.SetOutput(io.MultiWriter(writers...))
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
}

// GormLogger routes GORM statements through the standard Logrus logger.
func GormLogger() gormlogger.Interface {
	return gormlogger.New(
		log.New(logrus.StandardLogger().WriterLevel(logrus.DebugLevel), "", 0),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}
