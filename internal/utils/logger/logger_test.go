package logger

import (
	"bytes"
	"sort"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dwarvesf/fusion-bridge/internal/types/environments"
)

type fatalHook struct {
	called bool
}

func (h *fatalHook) OnWrite(_ *zapcore.CheckedEntry, _ []zapcore.Field) {
	h.called = true
}

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{wrappedLogger: zap.New(core)}, logs
}

var _ = Describe("Logger", func() {
	Describe("#New", func() {
		DescribeTable("builds a logger for every environment",
			func(env environments.Environment, debugEnabled bool) {
				l := New(env)
				Expect(l).NotTo(BeNil())
				Expect(l.wrappedLogger.Core().Enabled(zapcore.InfoLevel)).To(BeTrue())
				Expect(l.wrappedLogger.Core().Enabled(zapcore.DebugLevel)).To(Equal(debugEnabled))
			},
			Entry("production", environments.Production, false),
			Entry("staging", environments.Staging, false),
			Entry("development", environments.Development, true),
			Entry("test", environments.Test, false),
			Entry("unknown falls back to production", environments.Environment("unknown"), false),
		)
	})

	Describe("levels", func() {
		It("writes the message and string fields at each level", func() {
			l, logs := observed(zapcore.DebugLevel)

			l.Debug("[MatchOrder][Lock] waiting", map[string]string{"order_hash": "0xabc"})
			l.Info("[CreateOrder] order created", map[string]string{"maker": "0x01"})
			l.Warn("[Publish] event queue full")
			l.Error("[Deliver][post] webhook failed", map[string]string{"status": "502"})

			entries := logs.AllUntimed()
			Expect(entries).To(HaveLen(4))
			Expect(entries[0].Level).To(Equal(zapcore.DebugLevel))
			Expect(entries[0].ContextMap()).To(Equal(map[string]interface{}{"order_hash": "0xabc"}))
			Expect(entries[1].Message).To(Equal("[CreateOrder] order created"))
			Expect(entries[2].Level).To(Equal(zapcore.WarnLevel))
			Expect(entries[2].Context).To(BeEmpty())
			Expect(entries[3].ContextMap()).To(HaveKeyWithValue("status", "502"))
		})

		It("only reads the first field map", func() {
			l, logs := observed(zapcore.InfoLevel)

			l.Info("msg", map[string]string{"a": "1"}, map[string]string{"b": "2"})

			Expect(logs.All()[0].ContextMap()).To(Equal(map[string]interface{}{"a": "1"}))
		})
	})

	Describe("#Fatal", func() {
		It("runs the fatal hook", func() {
			hook := &fatalHook{}
			l := &Logger{wrappedLogger: zap.New(
				zapcore.NewCore(
					zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
					zapcore.AddSync(&bytes.Buffer{}),
					zap.FatalLevel,
				),
				zap.WithFatalHook(hook),
			)}

			l.Fatal("[Init][authority.New] invalid registry owner", map[string]string{"owner": "nope"})
			Expect(hook.called).To(BeTrue())
		})
	})

	Describe("#With", func() {
		It("carries its fields on every entry and leaves the parent untouched", func() {
			parent, logs := observed(zapcore.InfoLevel)
			child := parent.With(map[string]string{"order_hash": "0xabc"})

			child.Warn("refund window not reached", map[string]string{"caller": "0x01"})
			parent.Info("unrelated")

			entries := logs.AllUntimed()
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].ContextMap()).To(Equal(map[string]interface{}{"order_hash": "0xabc", "caller": "0x01"}))
			Expect(entries[1].Context).To(BeEmpty())
		})
	})

	Describe("#NewNop", func() {
		It("discards every level", func() {
			nop := NewNop()
			Expect(nop.wrappedLogger.Core().Enabled(zapcore.ErrorLevel)).To(BeFalse())
			Expect(func() {
				nop.Debug("debug")
				nop.Info("info")
				nop.Warn("warn")
				nop.Error("error")
			}).NotTo(Panic())
		})
	})

	Describe("#transformStrMapToFields", func() {
		It("maps every entry to a string field", func() {
			fields := transformStrMapToFields(map[string]string{
				"chain_id": "397",
				"family":   "near",
			})
			sort.Slice(fields, func(i, j int) bool {
				return fields[i].Key < fields[j].Key
			})

			Expect(fields).To(Equal([]zap.Field{
				zap.String("chain_id", "397"),
				zap.String("family", "near"),
			}))
		})

		It("returns an empty slice for an empty map", func() {
			Expect(transformStrMapToFields(map[string]string{})).To(BeEmpty())
		})
	})
})
