package internal

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultPasswords returns the passwords tried by default when opening
// PKCS#12 and JKS containers. Returns a fresh copy each call.
func DefaultPasswords() []string {
	return []string{"", "password", "changeit", "keypassword"}
}

// LoadPasswordsFromFile loads passwords from a file, one per line. Blank
// lines are skipped.
func LoadPasswordsFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var passwords []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			passwords = append(passwords, pwd)
		}
	}
	return passwords, scanner.Err()
}

// ProcessPasswords merges the defaults, a comma-separated list, and an
// optional password file, dropping duplicates while preserving order.
func ProcessPasswords(passwordList string, passwordFile string) ([]string, error) {
	passwords := DefaultPasswords()

	if passwordList != "" {
		for p := range strings.SplitSeq(passwordList, ",") {
			passwords = append(passwords, strings.TrimSpace(p))
		}
	}

	if passwordFile != "" {
		filePasswords, err := LoadPasswordsFromFile(passwordFile)
		if err != nil {
			return nil, fmt.Errorf("loading passwords from file: %w", err)
		}
		passwords = append(passwords, filePasswords...)
	}

	seen := make(map[string]bool, len(passwords))
	unique := make([]string, 0, len(passwords))
	for _, pwd := range passwords {
		if !seen[pwd] {
			seen[pwd] = true
			unique = append(unique, pwd)
		}
	}
	return unique, nil
}
