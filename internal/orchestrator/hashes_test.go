package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVersion(t *testing.T) {
	assert.Equal(t, "1.2.0", NormalizeVersion("v1.2"))
	assert.Equal(t, "1.2.0", NormalizeVersion(" 1.2.0 "))
	assert.Equal(t, "not-a-version", NormalizeVersion("not-a-version"))
}

func TestPackLockHash_OrderAndDuplicatesIgnored(t *testing.T) {
	a := PackLockHash([]string{"core", "backend-go"}, "1.0.0")
	b := PackLockHash([]string{"backend-go", " core ", "core"}, "v1.0")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, PackLockHash([]string{"core"}, "1.0.0"))
	assert.NotEqual(t, a, PackLockHash([]string{"core", "backend-go"}, "1.0.1"))
}

func TestRulesetHash_BindsLockAndVersion(t *testing.T) {
	packs := []string{"core"}
	lock := PackLockHash(packs, "1.0.0")
	base := RulesetHash(packs, "1.0.0", lock)

	assert.Equal(t, base, RulesetHash([]string{"core", "core"}, "1.0", lock))
	assert.NotEqual(t, base, RulesetHash(packs, "2.0.0", lock))
	assert.NotEqual(t, base, RulesetHash(packs, "1.0.0", "other-lock"))
	assert.NotEqual(t, base, lock)
}

func TestActivationHash_SensitiveToEveryField(t *testing.T) {
	base := ActivationInput{
		Phase:          "2",
		ActiveGate:     "Discovery Gate",
		Mode:           "user",
		CapabilityHash: "0123456789abcdef",
		RepoIdentity:   "github.com/acme/app",
		RulesetHash:    "r",
	}
	h := ActivationHash(base)
	assert.Equal(t, h, ActivationHash(base))

	variants := []func(*ActivationInput){
		func(a *ActivationInput) { a.Phase = "2.1" },
		func(a *ActivationInput) { a.ActiveGate = "x" },
		func(a *ActivationInput) { a.Mode = "system" },
		func(a *ActivationInput) { a.CapabilityHash = "fedcba9876543210" },
		func(a *ActivationInput) { a.RepoIdentity = "github.com/acme/other" },
		func(a *ActivationInput) { a.RulesetHash = "s" },
	}
	for i, mut := range variants {
		v := base
		mut(&v)
		assert.NotEqual(t, h, ActivationHash(v), "variant %d", i)
	}
}
