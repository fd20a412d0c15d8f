package logging_test

import (
	"errors"
	"os"
	"sort"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/logging"
)

var _ = Describe("ColoredJSONFormatter", func() {
	format := func(fields logrus.Fields) string {
		f := logging.NewColoredJSONFormatter()
		f.DisableColors = true
		out, err := f.Format(&logrus.Entry{
			Logger:  logrus.New(),
			Data:    fields,
			Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Level:   logrus.WarnLevel,
			Message: "leg submitted",
		})
		Expect(err).NotTo(HaveOccurred())
		return string(out)
	}

	It("writes time, level and message first", func() {
		line := format(logrus.Fields{})
		Expect(line).To(HavePrefix("2026-01-02T03:04:05Z WARNING leg submitted"))
		Expect(line).To(HaveSuffix("\n"))
	})

	It("orders saga identifiers ahead of other fields", func() {
		line := format(logrus.Fields{
			"attempt":    2,
			"leg":        "A",
			"request_id": "liq-42",
			"error":      errors.New("boom"),
		})
		Expect(strings.Index(line, "request_id=")).To(BeNumerically("<", strings.Index(line, "leg=")))
		Expect(strings.Index(line, "leg=")).To(BeNumerically("<", strings.Index(line, "error=")))
		Expect(strings.Index(line, "error=")).To(BeNumerically("<", strings.Index(line, "attempt=")))
		Expect(line).To(ContainSubstring(`error="boom"`))
		Expect(line).To(ContainSubstring("attempt=2"))
	})

	It("groups correlation ids, then saga position, then failure detail", func() {
		line := format(logrus.Fields{
			"wallet":           "loop",
			"code":             "WALLET_REJECTED",
			"ledger_update_id": "upd-7",
			"leg":              "B",
			"pool_cid":         "00abc",
			"request_id":       "liq-42",
			"amount":           "10.5",
		})
		order := []string{"request_id=", "pool_cid=", "leg=", "ledger_update_id=", "code=", "amount=", "wallet="}
		for i := 1; i < len(order); i++ {
			Expect(strings.Index(line, order[i-1])).To(BeNumerically("<", strings.Index(line, order[i])),
				"%s should come before %s", order[i-1], order[i])
		}
	})

	It("keeps the caller's sort when one is set", func() {
		f := logging.NewColoredJSONFormatter()
		f.DisableColors = true
		f.SortingFunc = func(keys []string) []string {
			sort.Sort(sort.Reverse(sort.StringSlice(keys)))
			return keys
		}
		out, err := f.Format(&logrus.Entry{
			Logger: logrus.New(),
			Data:   logrus.Fields{"a": 1, "request_id": "liq-1"},
			Time:   time.Now(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.Index(string(out), "request_id=")).To(BeNumerically("<", strings.Index(string(out), "a=1")))
	})
})

var _ = Describe("NewLogger", func() {
	AfterEach(func() {
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("LOG_FORMAT")
	})

	It("honors LOG_LEVEL and LOG_FORMAT", func() {
		os.Setenv("LOG_LEVEL", "debug")
		os.Setenv("LOG_FORMAT", "json")

		logger := logging.NewLogger()
		Expect(logger.GetLevel()).To(Equal(logrus.DebugLevel))
		Expect(logger.Formatter).To(BeAssignableToTypeOf(&logrus.JSONFormatter{}))
	})

	It("defaults to info with the console formatter", func() {
		logger := logging.NewLogger()
		Expect(logger.GetLevel()).To(Equal(logrus.InfoLevel))
		Expect(logger.Formatter).To(BeAssignableToTypeOf(&logging.ColoredJSONFormatter{}))
	})
})
