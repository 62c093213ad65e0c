package objstore

import "os"

func touchSentinel(repoPath string) error {
	f, err := os.Create(PreciousSentinel(repoPath))
	if err != nil {
		return err
	}
	return f.Close()
}

func removeSentinel(repoPath string) error {
	err := os.Remove(PreciousSentinel(repoPath))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func sentinelExists(repoPath string) bool {
	_, err := os.Stat(PreciousSentinel(repoPath))
	return err == nil
}
