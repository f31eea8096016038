//go:build !linux

package platform

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func InstallChildSa(sa *SaParams, log *logrus.Logger) error {
	return errors.New("IPsec SA installation is only implemented on linux")
}

func RemoveChildSa(sa *SaParams, log *logrus.Logger) error {
	return errors.New("IPsec SA installation is only implemented on linux")
}
