package safety

import "testing"

func TestClassifyBlocklist(t *testing.T) {
	g := New(false)
	blocked := []string{
		"rm -rf /",
		"rm -fr / ",
		"mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		"shutdown -h now",
		"reboot",
		"wipefs -a /dev/sda",
	}
	for _, cmd := range blocked {
		if got := g.Classify(cmd).Verdict; got != Blocked {
			t.Errorf("Classify(%q) = %v, want Blocked", cmd, got)
		}
	}
}

func TestClassifyWarnlist(t *testing.T) {
	g := New(false)
	warn := []string{
		"sudo systemctl restart nginx",
		"chmod 777 /var/www",
		"kill -9 1234",
		"apt-get install curl",
	}
	for _, cmd := range warn {
		if got := g.Classify(cmd).Verdict; got != Warn {
			t.Errorf("Classify(%q) = %v, want Warn", cmd, got)
		}
	}
}

func TestClassifyAllowed(t *testing.T) {
	g := New(false)
	allowed := []string{"ls -la /tmp", "echo hello", "cat /etc/hostname"}
	for _, cmd := range allowed {
		if got := g.Classify(cmd).Verdict; got != Allowed {
			t.Errorf("Classify(%q) = %v, want Allowed", cmd, got)
		}
	}
}

func TestClassifyIdempotentUnderWhitespace(t *testing.T) {
	g := New(false)
	a := g.Classify("  rm -rf /  ")
	b := g.Classify("rm -rf /")
	if a.Verdict != b.Verdict {
		t.Errorf("classification not idempotent under whitespace normalization: %v vs %v", a.Verdict, b.Verdict)
	}
}

func TestClassifySkipsEnvAssignments(t *testing.T) {
	g := New(false)
	got := g.Classify("FOO=bar ls -la")
	if got.Verdict != Allowed {
		t.Errorf("Classify with leading env assignment = %v, want Allowed", got.Verdict)
	}
}

func TestAllowlistMode(t *testing.T) {
	g := New(true)
	if got := g.Classify("ls -la").Verdict; got != Allowed {
		t.Errorf("allowlist mode: Classify(ls) = %v, want Allowed", got)
	}
	if got := g.Classify("rm file.txt").Verdict; got != Blocked {
		t.Errorf("allowlist mode: Classify(rm) = %v, want Blocked", got)
	}
}
