package manifest

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func rsaKeyPEM(t *testing.T) ([]byte, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	priv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return priv, pub
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"a.pcap":             TypeCapture,
		"b.PCAPNG":           TypeCapture,
		"diagnostics.ndjson": TypeDiagnostics,
		"report.json":        TypeJSON,
		"report.pdf":         TypePDF,
		"stations.yml":       TypeYAML,
		"notes.txt":          TypeOther,
	}
	for name, want := range cases {
		if got := Classify(name); got != want {
			t.Errorf("Classify(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestBuildSaveLoadCheck(t *testing.T) {
	dir := t.TempDir()
	capPath := writeFile(t, dir, "lab.pcap", "capture bytes")
	repPath := writeFile(t, dir, "inspection_report.json", "{}")
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m, err := BuildAt([]string{capPath, repPath}, now)
	if err != nil {
		t.Fatalf("BuildAt: %v", err)
	}
	if len(m.Items) != 2 || m.Items[0].Type != TypeCapture || m.Items[1].Type != TypeJSON {
		t.Fatalf("unexpected items: %+v", m.Items)
	}
	if m.Items[0].Size != int64(len("capture bytes")) {
		t.Fatalf("size = %d", m.Items[0].Size)
	}

	out := filepath.Join(dir, "manifest.json")
	if err := Save(m, out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(m, loaded); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}
	if bad := Check(loaded, ""); len(bad) != 0 {
		t.Fatalf("unexpected mismatches: %+v", bad)
	}

	writeFile(t, dir, "lab.pcap", "tampered")
	os.Remove(repPath)
	bad := Check(loaded, "")
	var reasons []string
	for _, b := range bad {
		reasons = append(reasons, b.Reason)
	}
	if diff := cmp.Diff([]string{"digest", "missing"}, reasons); diff != "" {
		t.Fatalf("reasons (-want +got):\n%s", diff)
	}
}

func TestBuildErrors(t *testing.T) {
	if _, err := Build(nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Build(nil) = %v, want ErrEmpty", err)
	}
	if _, err := Build([]string{filepath.Join(t.TempDir(), "absent.pcap")}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSignAndVerify(t *testing.T) {
	dir := t.TempDir()
	capPath := writeFile(t, dir, "lab.pcap", "capture bytes")
	priv, pub := rsaKeyPEM(t)

	m, err := Build([]string{capPath})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out := filepath.Join(dir, "manifest.json")
	signed, err := SignAndSave(m, out, priv)
	if err != nil {
		t.Fatalf("SignAndSave: %v", err)
	}
	if signed.Signature == nil || signed.Signature.Algorithm != "RS256" {
		t.Fatalf("signature metadata = %+v", signed.Signature)
	}
	if _, err := os.Stat(out + SignatureExt); err != nil {
		t.Fatalf("signature file: %v", err)
	}

	for name, key := range map[string][]byte{"public": pub, "private": priv} {
		got, err := VerifyFile(out, key)
		if err != nil {
			t.Fatalf("VerifyFile with %s key: %v", name, err)
		}
		if got.Signature.KeyID != signed.Signature.KeyID {
			t.Fatalf("key id = %q", got.Signature.KeyID)
		}
	}

	otherPriv, _ := rsaKeyPEM(t)
	if _, err := VerifyFile(out, otherPriv); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("other key: %v, want ErrKeyMismatch", err)
	}

	b, _ := os.ReadFile(out)
	b = bytes.Replace(b, []byte(`"shaAlgo": "sha256"`), []byte(`"shaAlgo": "sha512"`), 1)
	if err := os.WriteFile(out, b, 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, err := VerifyFile(out, pub); err == nil {
		t.Fatalf("tampered manifest verified")
	}
}

func TestVerifyUnsigned(t *testing.T) {
	dir := t.TempDir()
	m, err := Build([]string{writeFile(t, dir, "a.pcap", "x")})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out := filepath.Join(dir, "manifest.json")
	if err := Save(m, out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, pub := rsaKeyPEM(t)
	if _, err := VerifyFile(out, pub); !errors.Is(err, ErrUnsigned) {
		t.Fatalf("VerifyFile = %v, want ErrUnsigned", err)
	}
	if _, err := ParsePublicKey([]byte("junk")); !errors.Is(err, ErrNoPEM) {
		t.Fatalf("ParsePublicKey junk = %v", err)
	}
}
