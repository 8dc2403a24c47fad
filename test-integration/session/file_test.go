package integration

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v0 "github.com/pinehappi/argon/internal/api/v0"
	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/status"
	"github.com/pinehappi/argon/test-integration/session/helpers"
)

var _ = Describe("File source session", func() {
	var (
		workspace string
		session   *helpers.SessionTestHelper
	)

	writeClasses := func(payload string) {
		Expect(os.WriteFile(filepath.Join(workspace, "classes.json"), []byte(payload), 0600)).To(Succeed())
	}

	BeforeEach(func() {
		workspace = GinkgoT().TempDir()
		writeClasses(`{"version":"local-1","classes":["Part","Folder"]}`)
		helpers.WriteConfigYAML(workspace, map[string]any{
			"source": map[string]any{
				"type":   config.SourceTypeFile,
				"format": config.SourceFormatClassList,
				"file":   map[string]any{"path": "classes.json"},
			},
		})

		session = helpers.NewSessionTestHelper(ctx, workspace)
		Expect(session.StartSession()).To(Succeed())
		session.WaitForSessionReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(session.StopSession()).To(Succeed())
	})

	It("lists, filters and looks up classes", func() {
		var list v0.ClassesResponse
		Expect(session.GetJSON("/classes", &list)).To(Equal(http.StatusOK))
		Expect(list.Classes).To(Equal([]string{"Folder", "Part"}))

		Expect(session.GetJSON("/classes?prefix=fo", &list)).To(Equal(http.StatusOK))
		Expect(list.Classes).To(Equal([]string{"Folder"}))

		Expect(session.GetJSON("/classes?limit=1", &list)).To(Equal(http.StatusOK))
		Expect(list.Count).To(Equal(1))

		Expect(session.GetJSON("/classes/Script", nil)).To(Equal(http.StatusNotFound))
	})

	It("rejects an empty class list and keeps the current table", func() {
		writeClasses(`[]`)

		var refresh v0.RefreshResponse
		Expect(session.PostJSON("/classes/refresh?force=true", &refresh)).To(Equal(http.StatusBadGateway))
		Expect(refresh.Code).To(Equal(status.CodeConnectionFailed))

		var list v0.ClassesResponse
		Expect(session.GetJSON("/classes", &list)).To(Equal(http.StatusOK))
		Expect(list.Classes).To(Equal([]string{"Folder", "Part"}))
	})
})
