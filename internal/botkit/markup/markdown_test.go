package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeForMarkdown(t *testing.T) {
	assert.Equal(t,
		`octocat/hello\-world \(ready\): https://github\.com/octocat/hello\-world`,
		EscapeForMarkdown("octocat/hello-world (ready): https://github.com/octocat/hello-world"),
	)
	assert.Equal(t, `\_\*\[\]\~\`+"`"+`\>\#\+\=\|\{\}\!`, EscapeForMarkdown("_*[]~`>#+=|{}!"))
}
