/*
Copyright 2024 The Kubetools Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package runtime

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/kubernetes"
)

// ServerVersion queries the API server build version through the
// discovery endpoint and normalizes it to a plain semver string, so
// the version command prints client and server in the same form.
func ServerVersion(rcg genericclioptions.RESTClientGetter, timeout time.Duration) (string, error) {
	cfg, err := rcg.ToRESTConfig()
	if err != nil {
		return "", fmt.Errorf("loading kubeconfig: %w", err)
	}
	cfg.Timeout = timeout

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return "", fmt.Errorf("building discovery client: %w", err)
	}

	info, err := clientset.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("querying the API server version: %w", err)
	}

	ver, err := semver.NewVersion(info.GitVersion)
	if err != nil {
		return "", fmt.Errorf("parsing the API server version %q: %w", info.GitVersion, err)
	}
	return ver.String(), nil
}
