package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v0 "github.com/pinehappi/argon/internal/api/v0"
	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/git"
	"github.com/pinehappi/argon/internal/status"
	"github.com/pinehappi/argon/test-integration/session/helpers"
)

var _ = Describe("Git source session", func() {
	var (
		workspace string
		repoDir   string
		session   *helpers.SessionTestHelper
	)

	BeforeEach(func() {
		workspace = GinkgoT().TempDir()
		repoDir = git.CreateTestRepo(GinkgoT(), "roblox", map[string]string{
			"API-Dump.json": string(helpers.APIDump("Part", "Workspace")),
		})
		helpers.WriteConfigYAML(workspace, map[string]any{
			"source": map[string]any{
				"type":   config.SourceTypeGit,
				"format": config.SourceFormatAPIDump,
				"git": map[string]any{
					"repository": repoDir,
					"branch":     "roblox",
					"path":       "API-Dump.json",
				},
			},
		})

		session = helpers.NewSessionTestHelper(ctx, workspace)
		Expect(session.StartSession()).To(Succeed())
		session.WaitForSessionReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(session.StopSession()).To(Succeed())
	})

	It("syncs the dump from the repository on start", func() {
		Expect(session.Codes()).To(Equal([]status.Code{status.CodeUpdated, status.CodeStarted}))

		var resp v0.ClassesResponse
		Expect(session.GetJSON("/classes", &resp)).To(Equal(http.StatusOK))
		Expect(resp.Classes).To(Equal([]string{"Part", "Workspace"}))
	})

	It("follows new commits on a forced refresh", func() {
		head := git.CommitTestFiles(GinkgoT(), repoDir, map[string]string{
			"API-Dump.json": string(helpers.APIDump("Part", "Workspace", "Terrain")),
		})

		var refresh v0.RefreshResponse
		Expect(session.PostJSON("/classes/refresh?force=true", &refresh)).To(Equal(http.StatusOK))
		Expect(refresh.Code).To(Equal(status.CodeUpdated))
		Expect(refresh.Version).To(Equal(head))

		var class v0.ClassResponse
		Expect(session.GetJSON("/classes/terrain", &class)).To(Equal(http.StatusOK))
		Expect(class.Name).To(Equal("Terrain"))
	})
})
