package logger

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ = Describe("Logger Environment", func() {
	type expectation struct {
		level         zapcore.Level
		development   bool
		encoding      string
		quietCaller   bool
		quietStack    bool
		writesOutputs bool
	}

	DescribeTable("per environment configuration",
		func(build func() zap.Config, want expectation) {
			cfg := build()

			Expect(cfg.Level.Level()).To(Equal(want.level))
			Expect(cfg.Development).To(Equal(want.development))
			Expect(cfg.Encoding).To(Equal(want.encoding))
			Expect(cfg.DisableCaller).To(Equal(want.quietCaller))
			Expect(cfg.DisableStacktrace).To(Equal(want.quietStack))
			if want.writesOutputs {
				Expect(cfg.OutputPaths).To(Equal([]string{"stdout"}))
				Expect(cfg.ErrorOutputPaths).To(Equal([]string{"stderr"}))
			} else {
				Expect(cfg.OutputPaths).To(BeEmpty())
				Expect(cfg.ErrorOutputPaths).To(BeEmpty())
			}
		},
		Entry("production", newProductionLoggerConfig, expectation{
			level: zap.InfoLevel, encoding: "json", writesOutputs: true,
		}),
		Entry("staging", newStagingLoggerConfig, expectation{
			level: zap.InfoLevel, encoding: "json", quietCaller: true, quietStack: true, writesOutputs: true,
		}),
		Entry("development", newDevelopmentLoggerConfig, expectation{
			level: zap.DebugLevel, development: true, encoding: "console", quietCaller: true, quietStack: true, writesOutputs: true,
		}),
		Entry("test", newTestLoggerConfig, expectation{
			level: zap.InfoLevel, encoding: "json",
		}),
	)

	Describe("json environments", func() {
		It("stamp entries under an ISO8601 timestamp key", func() {
			for _, cfg := range []zap.Config{newProductionLoggerConfig(), newStagingLoggerConfig(), newTestLoggerConfig()} {
				Expect(cfg.EncoderConfig.TimeKey).To(Equal("timestamp"))
				Expect(cfg.EncoderConfig.EncodeTime).NotTo(BeNil())
			}
		})
	})

	Describe("#newDevelopmentLoggerConfig", func() {
		It("colours levels for terminals", func() {
			cfg := newDevelopmentLoggerConfig()
			Expect(cfg.EncoderConfig.EncodeLevel).NotTo(BeNil())
			Expect(cfg.EncoderConfig.TimeKey).NotTo(Equal("timestamp"))
		})
	})
})
